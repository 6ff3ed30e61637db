package indexing

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go_seoindex/internal/cache"
)

// recorder keeps the order of engine calls across goroutines
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, e := range r.all() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

type fakePrimary struct {
	rec     *recorder
	fail    map[string]bool // by url
	panics  bool
	batches [][]string
	mu      sync.Mutex
}

func (f *fakePrimary) Available() bool { return true }

func (f *fakePrimary) SubmitBatch(ctx context.Context, urls []string, changeType ChangeType) []IndexResult {
	if f.panics {
		panic("boom")
	}
	f.mu.Lock()
	f.batches = append(f.batches, urls)
	f.mu.Unlock()

	results := make([]IndexResult, len(urls))
	for i, u := range urls {
		f.rec.add("primary:" + u)
		results[i] = IndexResult{URL: u, Success: !f.fail[u]}
	}
	return results
}

type fakeBroadcast struct {
	rec  *recorder
	fail map[string]bool // by first url
}

func (f *fakeBroadcast) Available() bool     { return true }
func (f *fakeBroadcast) Endpoints() []string { return []string{"https://indexnow.test"} }

func (f *fakeBroadcast) SubmitURLs(ctx context.Context, urls []string) BroadcastSummary {
	f.rec.add("broadcast:" + urls[0])
	return BroadcastSummary{Success: !f.fail[urls[0]], Submitted: len(urls)}
}

type fakePinger struct {
	rec *recorder
}

func (f *fakePinger) Ping(ctx context.Context, sitemapURL string) PingResult {
	f.rec.add("ping:" + sitemapURL)
	return PingResult{SitemapURL: sitemapURL, Success: true, StatusCode: 200}
}

type fakeQuota struct{}

func (fakeQuota) Size() int              { return 2 }
func (fakeQuota) HasAnyQuota() bool      { return true }
func (fakeQuota) TotalRemaining() int    { return 42 }
func (fakeQuota) Snapshot() []Credential { return []Credential{{ID: "a", DailyQuota: 200, IsActive: true}} }

type orchestratorFixture struct {
	o         *Orchestrator
	rec       *recorder
	primary   *fakePrimary
	broadcast *fakeBroadcast
	ledger    *Ledger
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	rec := &recorder{}
	fx := &orchestratorFixture{
		rec:       rec,
		primary:   &fakePrimary{rec: rec, fail: map[string]bool{}},
		broadcast: &fakeBroadcast{rec: rec, fail: map[string]bool{}},
		ledger:    NewLedger(cache.NewMemoryStore(), testLogger()),
	}
	fx.o = NewOrchestrator(&Config{
		Primary:        fx.primary,
		Broadcast:      fx.broadcast,
		Sitemap:        &fakePinger{rec: rec},
		Pool:           fakeQuota{},
		Ledger:         fx.ledger,
		Logger:         testLogger(),
		PlatformDomain: "example.shop",
	})
	fx.o.sleep = func(ctx context.Context, d time.Duration) {
		rec.add("sleep:" + d.String())
	}
	return fx
}

func TestOrchestrator_OnTenantCreated(t *testing.T) {
	fx := newOrchestratorFixture(t)
	ctx := context.Background()

	res := fx.o.OnTenantCreated(ctx, "acme")
	fx.o.Wait()

	if !res.Success || res.Event != EventTenantCreated || res.Subject != "acme" {
		t.Fatalf("Unexpected result: %+v", res)
	}
	if res.EventID == "" || res.Timestamp.IsZero() {
		t.Error("Expected event id and timestamp")
	}
	if res.Primary.Submitted != 2 || res.Primary.Succeeded != 2 || res.Primary.RemainingQuota != 42 {
		t.Errorf("Unexpected primary summary: %+v", res.Primary)
	}

	want := []string{"https://acme.example.shop/", "https://acme.example.shop/products"}
	if got := fx.primary.batches[0]; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Expected urls %v, got %v", want, got)
	}
	if fx.rec.count("ping:https://acme.example.shop/sitemap.xml") != 1 {
		t.Error("Expected tenant sitemap ping")
	}
	if fx.rec.count("ping:https://example.shop/sitemap.xml") != 1 {
		t.Error("Expected detached platform sitemap ping")
	}

	fx.o.OnTenantUpdated(ctx, "acme")
	fx.o.Wait()
	stats, _ := fx.ledger.Today(ctx)
	if stats.TenantsIndexed.Count != 1 {
		t.Errorf("Expected tenant to be counted once per day, got %d", stats.TenantsIndexed.Count)
	}
}

func TestOrchestrator_OnProductChanged(t *testing.T) {
	fx := newOrchestratorFixture(t)
	ctx := context.Background()

	res := fx.o.OnProductCreated(ctx, "acme", "42", "blue-mug")
	fx.o.OnProductUpdated(ctx, "acme", "43", "")
	fx.o.Wait()

	if !res.Success || res.Event != EventProductCreated {
		t.Fatalf("Unexpected result: %+v", res)
	}
	if got := fx.primary.batches[0][0]; got != "https://acme.example.shop/products/blue-mug" {
		t.Errorf("Expected slug-based product url, got %s", got)
	}
	if got := fx.primary.batches[1][0]; got != "https://acme.example.shop/products/43" {
		t.Errorf("Expected id-based product url, got %s", got)
	}
	if got := fx.primary.batches[0][1]; got != "https://acme.example.shop/products" {
		t.Errorf("Expected products listing url, got %s", got)
	}

	stats, _ := fx.ledger.Today(ctx)
	if stats.ProductsIndexed.Count != 2 {
		t.Errorf("Expected every product event to count, got %d", stats.ProductsIndexed.Count)
	}
}

func TestOrchestrator_OnProductDeleted(t *testing.T) {
	fx := newOrchestratorFixture(t)

	res := fx.o.OnProductDeleted(context.Background(), "acme")
	fx.o.Wait()

	if !res.Success || res.Sitemap.SitemapURL != "https://acme.example.shop/sitemap.xml" {
		t.Fatalf("Unexpected result: %+v", res)
	}
	events := fx.rec.all()
	if len(events) != 1 || events[0] != "ping:https://acme.example.shop/sitemap.xml" {
		t.Errorf("Expected exactly one tenant sitemap ping, got %v", events)
	}
}

func TestOrchestrator_RejectsEmptySubjects(t *testing.T) {
	fx := newOrchestratorFixture(t)
	ctx := context.Background()

	for _, res := range []AggregateResult{
		fx.o.OnTenantCreated(ctx, ""),
		fx.o.OnProductCreated(ctx, "acme", "", ""),
		fx.o.OnProductDeleted(ctx, ""),
	} {
		if res.Success || res.Error == "" {
			t.Errorf("Expected failed result, got %+v", res)
		}
	}
	fx.o.Wait()
	if len(fx.rec.all()) != 0 {
		t.Errorf("Expected no engine calls, got %v", fx.rec.all())
	}
}

func TestOrchestrator_PanicYieldsAllFalseResult(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.primary.panics = true

	res := fx.o.OnTenantUpdated(context.Background(), "acme")
	fx.o.Wait()

	if res.Success || res.Primary.Success || res.Broadcast.Success || res.Sitemap.Success {
		t.Errorf("Expected all-false result, got %+v", res)
	}
	if !strings.Contains(res.Error, "boom") {
		t.Errorf("Expected panic to be reported, got %q", res.Error)
	}
}

func TestOrchestrator_BatchReindex(t *testing.T) {
	fx := newOrchestratorFixture(t)
	slugs := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}

	// b fails on both engines, c only on the primary engine
	fx.primary.fail["https://b.example.shop/"] = true
	fx.primary.fail["https://b.example.shop/products"] = true
	fx.broadcast.fail["https://b.example.shop/"] = true
	fx.primary.fail["https://c.example.shop/"] = true
	fx.primary.fail["https://c.example.shop/products"] = true

	res := fx.o.BatchReindex(context.Background(), slugs)
	fx.o.Wait()

	if res.Total != 11 || res.Successful != 10 {
		t.Errorf("Expected 10 of 11 successful, got %+v", res)
	}
	if len(res.FailedSlugs) != 1 || res.FailedSlugs[0] != "b" {
		t.Errorf("Expected failed slugs [b], got %v", res.FailedSlugs)
	}

	events := fx.rec.all()
	sleepAt := -1
	for i, e := range events {
		if strings.HasPrefix(e, "sleep:") {
			if sleepAt >= 0 {
				t.Fatalf("Expected a single pause between two chunks, got %v", events)
			}
			sleepAt = i
			if e != "sleep:2s" {
				t.Errorf("Expected 2s pause, got %s", e)
			}
		}
	}
	if sleepAt < 0 {
		t.Fatal("Expected a pause between chunks")
	}
	for i, e := range events {
		if strings.HasPrefix(e, "primary:https://k.") && i < sleepAt {
			t.Errorf("Expected the 11th tenant after the pause")
		}
		if strings.HasPrefix(e, "primary:https://a.") && i > sleepAt {
			t.Errorf("Expected the first chunk before the pause")
		}
	}

	if n := fx.rec.count("ping:https://example.shop/sitemap.xml"); n != 1 {
		t.Errorf("Expected platform sitemap to be pinged exactly once, got %d", n)
	}
	if last := events[len(events)-1]; last != "ping:https://example.shop/sitemap.xml" {
		t.Errorf("Expected platform ping after all chunks, got %s", last)
	}
	if n := fx.rec.count("primary:"); n != 22 {
		t.Errorf("Expected 22 primary submissions, got %d", n)
	}
}

func TestOrchestrator_BatchReindexEmpty(t *testing.T) {
	fx := newOrchestratorFixture(t)
	res := fx.o.BatchReindex(context.Background(), nil)
	if res.Total != 0 || res.FailedSlugs == nil {
		t.Errorf("Unexpected result: %+v", res)
	}
	if len(fx.rec.all()) != 0 {
		t.Errorf("Expected no engine calls, got %v", fx.rec.all())
	}
}

func TestOrchestrator_DetachSurvivesCallerCancel(t *testing.T) {
	fx := newOrchestratorFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	var sawErr error
	fx.o.Detach(ctx, "test", time.Second, func(ctx context.Context) {
		close(started)
		time.Sleep(20 * time.Millisecond)
		sawErr = ctx.Err()
	})
	<-started
	cancel()
	fx.o.Wait()

	if sawErr != nil {
		t.Errorf("Expected detached task to ignore caller cancellation, got %v", sawErr)
	}

	fx.o.Detach(context.Background(), "panicky", time.Second, func(ctx context.Context) { panic("ignored") })
	fx.o.Wait()
}

func TestOrchestrator_StatusAndStats(t *testing.T) {
	fx := newOrchestratorFixture(t)
	ctx := context.Background()

	fx.ledger.RecordPrimary(ctx, true)
	fx.ledger.RecordPrimary(ctx, false)
	fx.ledger.RecordTenant(ctx, "acme")

	st, err := fx.o.Status(ctx)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if !st.Primary.Available || st.Primary.Credentials != 2 || st.Primary.TotalRemaining != 42 {
		t.Errorf("Unexpected primary status: %+v", st.Primary)
	}
	if st.Primary.Active != 1 || st.Primary.TotalQuota != 200 {
		t.Errorf("Unexpected key aggregates: %+v", st.Primary)
	}
	if !st.Broadcast.Available || len(st.Broadcast.Endpoints) != 1 || !st.Sitemap.Available {
		t.Errorf("Unexpected engine status: %+v", st)
	}
	if st.Today.Primary.Submitted != 2 {
		t.Errorf("Expected today's counters, got %+v", st.Today.Primary)
	}

	ds, err := fx.o.DetailedStats(ctx)
	if err != nil {
		t.Fatalf("DetailedStats() failed: %v", err)
	}
	if len(ds.Week) != 7 || ds.Totals.Primary.Submitted != 2 || ds.Totals.Tenants != 1 {
		t.Errorf("Unexpected detailed stats: %+v", ds)
	}
}

// rendezvous releases its callers only once all n of them have arrived
type rendezvous struct {
	arrived  sync.WaitGroup
	released chan struct{}
}

func newRendezvous(n int) *rendezvous {
	r := &rendezvous{released: make(chan struct{})}
	r.arrived.Add(n)
	go func() {
		r.arrived.Wait()
		close(r.released)
	}()
	return r
}

// arrive reports whether every caller arrived before the deadline
func (r *rendezvous) arrive() bool {
	r.arrived.Done()
	select {
	case <-r.released:
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

type meetingPrimary struct{ r *rendezvous }

func (m meetingPrimary) Available() bool { return true }

func (m meetingPrimary) SubmitBatch(ctx context.Context, urls []string, changeType ChangeType) []IndexResult {
	return []IndexResult{{URL: urls[0], Success: m.r.arrive()}}
}

type meetingBroadcast struct{ r *rendezvous }

func (m meetingBroadcast) Available() bool     { return true }
func (m meetingBroadcast) Endpoints() []string { return nil }

func (m meetingBroadcast) SubmitURLs(ctx context.Context, urls []string) BroadcastSummary {
	return BroadcastSummary{Success: m.r.arrive(), Submitted: len(urls)}
}

type meetingPinger struct{ r *rendezvous }

func (m meetingPinger) Ping(ctx context.Context, sitemapURL string) PingResult {
	return PingResult{SitemapURL: sitemapURL, Success: m.r.arrive()}
}

func TestOrchestrator_EnginesRunConcurrently(t *testing.T) {
	r := newRendezvous(3)
	o := NewOrchestrator(&Config{
		Primary:        meetingPrimary{r},
		Broadcast:      meetingBroadcast{r},
		Sitemap:        meetingPinger{r},
		Pool:           fakeQuota{},
		Ledger:         NewLedger(cache.NewMemoryStore(), testLogger()),
		Logger:         testLogger(),
		PlatformDomain: "example.shop",
	})

	res := o.fanOut(context.Background(), o.newResult(EventTenantUpdated, "acme"),
		[]string{"https://acme.example.shop/"}, "https://acme.example.shop/sitemap.xml")

	if !res.Primary.Success || !res.Broadcast.Success || !res.Sitemap.Success {
		t.Errorf("Expected all three engines to be in flight together, got primary=%v broadcast=%v sitemap=%v",
			res.Primary.Success, res.Broadcast.Success, res.Sitemap.Success)
	}
}
