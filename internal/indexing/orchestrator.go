package indexing

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultChunkSize is the number of tenants reindexed concurrently
	DefaultChunkSize = 10
	// DefaultChunkDelay is the pause between reindex chunks
	DefaultChunkDelay = 2 * time.Second

	detachedTimeout = 30 * time.Second
)

// EventType names the domain event that triggered indexing
type EventType string

const (
	EventTenantCreated  EventType = "tenant.created"
	EventTenantUpdated  EventType = "tenant.updated"
	EventTenantReindex  EventType = "tenant.reindex"
	EventProductCreated EventType = "product.created"
	EventProductUpdated EventType = "product.updated"
	EventProductDeleted EventType = "product.deleted"
)

// PrimarySubmitter is the quota-limited indexing API
type PrimarySubmitter interface {
	Available() bool
	SubmitBatch(ctx context.Context, urls []string, changeType ChangeType) []IndexResult
}

// Broadcaster pushes url lists to IndexNow endpoints
type Broadcaster interface {
	Available() bool
	Endpoints() []string
	SubmitURLs(ctx context.Context, urls []string) BroadcastSummary
}

// Pinger notifies a search engine about a changed sitemap
type Pinger interface {
	Ping(ctx context.Context, sitemapURL string) PingResult
}

// QuotaReporter exposes read-only credential pool aggregates
type QuotaReporter interface {
	Size() int
	HasAnyQuota() bool
	TotalRemaining() int
	Snapshot() []Credential
}

// PrimarySummary aggregates the primary engine's results for one event
type PrimarySummary struct {
	Available      bool          `json:"available"`
	Success        bool          `json:"success"`
	Submitted      int           `json:"submitted"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	RemainingQuota int           `json:"remainingQuota"`
	Results        []IndexResult `json:"results"`
}

// AggregateResult is returned for every domain event
type AggregateResult struct {
	EventID   string           `json:"eventId"`
	Event     EventType        `json:"event"`
	Subject   string           `json:"subject"`
	Success   bool             `json:"success"`
	Primary   PrimarySummary   `json:"primary"`
	Broadcast BroadcastSummary `json:"broadcast"`
	Sitemap   PingResult       `json:"sitemap"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// BatchResult summarizes a batch reindex
type BatchResult struct {
	Total       int      `json:"total"`
	Successful  int      `json:"successful"`
	FailedSlugs []string `json:"failedSlugs"`
}

// Config holds the configuration for the orchestrator
type Config struct {
	Primary        PrimarySubmitter
	Broadcast      Broadcaster
	Sitemap        Pinger
	Pool           QuotaReporter
	Ledger         *Ledger
	Logger         *logrus.Entry
	PlatformDomain string
	ChunkSize      int
	ChunkDelay     time.Duration
}

// Orchestrator fans domain events out to all indexing engines and aggregates
// their results. It never returns an error for an event.
type Orchestrator struct {
	primary    PrimarySubmitter
	broadcast  Broadcaster
	sitemap    Pinger
	pool       QuotaReporter
	ledger     *Ledger
	logger     *logrus.Entry
	urls       urlBuilder
	chunkSize  int
	chunkDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration)
	now        func() time.Time

	detached sync.WaitGroup
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(cfg *Config) *Orchestrator {
	o := &Orchestrator{
		primary:    cfg.Primary,
		broadcast:  cfg.Broadcast,
		sitemap:    cfg.Sitemap,
		pool:       cfg.Pool,
		ledger:     cfg.Ledger,
		logger:     cfg.Logger.WithField("component", "indexing-orchestrator"),
		urls:       urlBuilder{domain: cfg.PlatformDomain},
		chunkSize:  cfg.ChunkSize,
		chunkDelay: cfg.ChunkDelay,
		sleep:      sleepContext,
		now:        time.Now,
	}
	if o.chunkSize <= 0 {
		o.chunkSize = DefaultChunkSize
	}
	if o.chunkDelay <= 0 {
		o.chunkDelay = DefaultChunkDelay
	}
	return o
}

// OnTenantCreated indexes a newly created storefront
func (o *Orchestrator) OnTenantCreated(ctx context.Context, slug string) AggregateResult {
	return o.indexTenant(ctx, EventTenantCreated, slug, true)
}

// OnTenantUpdated re-indexes a storefront
func (o *Orchestrator) OnTenantUpdated(ctx context.Context, slug string) AggregateResult {
	return o.indexTenant(ctx, EventTenantUpdated, slug, true)
}

// OnProductCreated indexes a new product page
func (o *Orchestrator) OnProductCreated(ctx context.Context, tenantSlug, productID, productSlug string) AggregateResult {
	return o.indexProduct(ctx, EventProductCreated, tenantSlug, productID, productSlug)
}

// OnProductUpdated re-indexes a product page
func (o *Orchestrator) OnProductUpdated(ctx context.Context, tenantSlug, productID, productSlug string) AggregateResult {
	return o.indexProduct(ctx, EventProductUpdated, tenantSlug, productID, productSlug)
}

// OnProductDeleted only re-pings the tenant sitemap; there is no canonical url
// left to send a deletion for.
func (o *Orchestrator) OnProductDeleted(ctx context.Context, tenantSlug string) AggregateResult {
	res := o.newResult(EventProductDeleted, tenantSlug)
	if tenantSlug == "" {
		res.Error = "empty tenant slug"
		return res
	}

	err := runGuarded(func() {
		res.Sitemap = o.sitemap.Ping(ctx, o.urls.tenantSitemap(tenantSlug))
	})
	if err != nil {
		return o.failed(res, err)
	}
	res.Primary = PrimarySummary{Available: o.primary.Available(), RemainingQuota: o.pool.TotalRemaining()}
	res.Success = res.Sitemap.Success
	return res
}

// BatchReindex re-indexes tenants in chunks. Tenants of a chunk run
// concurrently; chunks are separated by a pause to spare the primary quota.
func (o *Orchestrator) BatchReindex(ctx context.Context, slugs []string) BatchResult {
	result := BatchResult{Total: len(slugs), FailedSlugs: []string{}}
	if len(slugs) == 0 {
		return result
	}

	for start := 0; start < len(slugs); start += o.chunkSize {
		if start > 0 {
			o.sleep(ctx, o.chunkDelay)
		}
		end := start + o.chunkSize
		if end > len(slugs) {
			end = len(slugs)
		}
		chunk := slugs[start:end]

		ok := make([]bool, len(chunk))
		var g errgroup.Group
		for i, slug := range chunk {
			i, slug := i, slug
			g.Go(func() error {
				res := o.indexTenant(ctx, EventTenantReindex, slug, false)
				ok[i] = res.Primary.Success || res.Broadcast.Success
				return nil
			})
		}
		_ = g.Wait()

		for i, slug := range chunk {
			if ok[i] {
				result.Successful++
			} else {
				result.FailedSlugs = append(result.FailedSlugs, slug)
			}
		}
		o.logger.Infof("Reindexed chunk %d-%d of %d", start+1, end, len(slugs))
	}

	o.sitemap.Ping(ctx, o.urls.platformSitemap())
	o.logger.Infof("Batch reindex done: total=%d, successful=%d, failed=%d",
		result.Total, result.Successful, len(result.FailedSlugs))
	return result
}

// Detach runs fn in the background with its own timeout, detached from the
// caller's cancellation. Errors and panics are only logged. Wait blocks until
// every detached task is done.
func (o *Orchestrator) Detach(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context)) {
	if timeout <= 0 {
		timeout = detachedTimeout
	}
	o.detached.Add(1)
	go func() {
		defer o.detached.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := runGuarded(func() { fn(dctx) }); err != nil {
			o.logger.WithField("task", name).Errorf("Detached task failed: %v", err)
		}
	}()
}

// Wait blocks until all detached tasks have finished
func (o *Orchestrator) Wait() {
	o.detached.Wait()
}

func (o *Orchestrator) indexTenant(ctx context.Context, event EventType, slug string, pingPlatform bool) AggregateResult {
	res := o.newResult(event, slug)
	if slug == "" {
		res.Error = "empty tenant slug"
		return res
	}

	urls := []string{o.urls.tenantHome(slug), o.urls.tenantProducts(slug)}
	res = o.fanOut(ctx, res, urls, o.urls.tenantSitemap(slug))

	if pingPlatform {
		o.pingPlatformDetached(ctx)
	}
	o.ledger.RecordTenant(ctx, slug)
	return res
}

func (o *Orchestrator) indexProduct(ctx context.Context, event EventType, tenantSlug, productID, productSlug string) AggregateResult {
	res := o.newResult(event, tenantSlug)
	if tenantSlug == "" || (productID == "" && productSlug == "") {
		res.Error = "tenant slug and product id or slug are required"
		return res
	}

	urls := []string{o.urls.product(tenantSlug, productID, productSlug), o.urls.tenantProducts(tenantSlug)}
	res = o.fanOut(ctx, res, urls, o.urls.tenantSitemap(tenantSlug))

	o.pingPlatformDetached(ctx)
	o.ledger.RecordProduct(ctx)
	return res
}

// fanOut runs the three engines concurrently and joins them before aggregating
func (o *Orchestrator) fanOut(ctx context.Context, res AggregateResult, urls []string, sitemapURL string) AggregateResult {
	var (
		primary   []IndexResult
		broadcast BroadcastSummary
		ping      PingResult
	)

	var g errgroup.Group
	g.Go(func() error {
		return runGuarded(func() { primary = o.primary.SubmitBatch(ctx, urls, URLUpdated) })
	})
	g.Go(func() error {
		return runGuarded(func() { broadcast = o.broadcast.SubmitURLs(ctx, urls) })
	})
	g.Go(func() error {
		return runGuarded(func() { ping = o.sitemap.Ping(ctx, sitemapURL) })
	})
	if err := g.Wait(); err != nil {
		return o.failed(res, err)
	}

	res.Primary = summarizePrimary(primary)
	res.Primary.Available = o.primary.Available()
	res.Primary.RemainingQuota = o.pool.TotalRemaining()
	res.Broadcast = broadcast
	res.Sitemap = ping
	res.Success = res.Primary.Success || res.Broadcast.Success || res.Sitemap.Success
	return res
}

func (o *Orchestrator) pingPlatformDetached(ctx context.Context) {
	o.Detach(ctx, "platform-sitemap-ping", detachedTimeout, func(ctx context.Context) {
		o.sitemap.Ping(ctx, o.urls.platformSitemap())
	})
}

func (o *Orchestrator) newResult(event EventType, subject string) AggregateResult {
	return AggregateResult{
		EventID:   uuid.NewString(),
		Event:     event,
		Subject:   subject,
		Timestamp: o.now(),
	}
}

// failed turns an unexpected error into an all-false result
func (o *Orchestrator) failed(res AggregateResult, err error) AggregateResult {
	o.logger.WithFields(logrus.Fields{
		"event":   res.Event,
		"subject": res.Subject,
	}).Errorf("Indexing fan-out failed: %v", err)

	return AggregateResult{
		EventID:   res.EventID,
		Event:     res.Event,
		Subject:   res.Subject,
		Error:     err.Error(),
		Timestamp: res.Timestamp,
	}
}

func summarizePrimary(results []IndexResult) PrimarySummary {
	s := PrimarySummary{Results: results, Submitted: len(results)}
	for _, r := range results {
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	s.Success = s.Succeeded > 0
	return s
}

// runGuarded converts a panic in fn into an error
func runGuarded(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
	return nil
}
