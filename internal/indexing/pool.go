package indexing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go_seoindex/internal/cache"
)

// DefaultCooldown is how long a credential stays disabled after an auth failure
const DefaultCooldown = 5 * time.Minute

const dateLayout = "2006-01-02"

// PoolConfig holds the configuration for a credential pool
type PoolConfig struct {
	Credentials []*Credential
	Store       cache.Store
	Logger      *logrus.Entry
	Cooldown    time.Duration
	Now         func() time.Time
}

// Pool selects service-account credentials round-robin, skipping inactive or
// exhausted ones. The rotation cursor is per process; usage counters are shared
// through the store, so several processes together stay close to the daily quota
// but may overshoot it by up to (processes - 1) calls.
type Pool struct {
	mu       sync.Mutex
	creds    []*Credential
	cursor   int
	timers   map[string]*time.Timer
	closed   bool
	store    cache.Store
	logger   *logrus.Entry
	cooldown time.Duration
	now      func() time.Time
}

// usageRecord is the persisted per-credential counter
type usageRecord struct {
	Used int    `json:"used"`
	Date string `json:"date"`
}

// NewPool creates a credential pool
func NewPool(cfg *PoolConfig) *Pool {
	p := &Pool{
		creds:    cfg.Credentials,
		timers:   make(map[string]*time.Timer),
		store:    cfg.Store,
		logger:   cfg.Logger.WithField("component", "credential-pool"),
		cooldown: cfg.Cooldown,
		now:      cfg.Now,
	}
	if p.cooldown <= 0 {
		p.cooldown = DefaultCooldown
	}
	if p.now == nil {
		p.now = time.Now
	}
	today := p.today()
	for _, c := range p.creds {
		if c.LastResetDate == "" {
			c.LastResetDate = today
		}
	}
	return p
}

// Size returns the number of configured credentials
func (p *Pool) Size() int {
	return len(p.creds)
}

// NextAvailable returns the next active credential with quota left, or nil.
// The returned credential holds one reserved call until RecordUsage or Release.
func (p *Pool) NextAvailable(ctx context.Context) *Credential {
	p.sync(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.creds)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		c := p.creds[idx]
		if c.available() {
			c.reserved++
			p.cursor = (idx + 1) % n
			return c
		}
	}
	return nil
}

// RecordUsage counts one call against the credential and persists the counter
// with a TTL that ends at local midnight.
func (p *Pool) RecordUsage(ctx context.Context, id string) {
	p.mu.Lock()
	c := p.find(id)
	if c == nil {
		p.mu.Unlock()
		p.logger.Warnf("RecordUsage for unknown credential %s", id)
		return
	}
	today := p.today()
	if c.LastResetDate != today {
		c.UsedToday = 0
		c.LastResetDate = today
	}
	if c.reserved > 0 {
		c.reserved--
	}
	c.UsedToday++
	rec := usageRecord{Used: c.UsedToday, Date: today}
	p.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		p.logger.Errorf("Failed to marshal usage for %s: %v", id, err)
		return
	}
	if err := p.store.Set(ctx, usageKey(id, rec.Date), string(data), p.untilMidnight()); err != nil {
		p.logger.Errorf("Failed to persist usage for %s: %v", id, err)
	}
}

// Release gives back a reservation for a call that never reached the API
func (p *Pool) Release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.find(id); c != nil && c.reserved > 0 {
		c.reserved--
	}
}

// MarkFailed disables the credential and re-enables it after the cooldown
func (p *Pool) MarkFailed(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.find(id)
	if c == nil || p.closed {
		return
	}
	c.IsActive = false
	if t, ok := p.timers[id]; ok {
		t.Stop()
	}
	p.timers[id] = time.AfterFunc(p.cooldown, func() { p.reenable(id) })
	p.logger.Warnf("Credential %s disabled for %s after auth failure", id, p.cooldown)
}

func (p *Pool) reenable(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.timers, id)
	if c := p.find(id); c != nil && !p.closed {
		c.IsActive = true
		p.logger.Infof("Credential %s re-enabled", id)
	}
}

// HasAnyQuota reports whether any credential can still be used, without resyncing
func (p *Pool) HasAnyQuota() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.creds {
		if c.available() {
			return true
		}
	}
	return false
}

// TotalRemaining sums the remaining quota of active credentials, without resyncing
func (p *Pool) TotalRemaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, c := range p.creds {
		if c.IsActive {
			total += c.Remaining()
		}
	}
	return total
}

// Snapshot returns copies of all credentials (key material omitted)
func (p *Pool) Snapshot() []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Credential, 0, len(p.creds))
	for _, c := range p.creds {
		cp := *c
		cp.PrivateKey = ""
		out = append(out, cp)
	}
	return out
}

// Close stops pending re-enable timers
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
}

// sync pulls today's counters from the store. A stored counter wins when it is
// ahead of memory; a missing one only resets memory that belongs to an earlier day.
func (p *Pool) sync(ctx context.Context) {
	today := p.today()

	p.mu.Lock()
	ids := make([]string, len(p.creds))
	for i, c := range p.creds {
		ids[i] = c.ID
	}
	p.mu.Unlock()

	stored := make(map[string]int, len(ids))
	for _, id := range ids {
		val, found, err := p.store.Get(ctx, usageKey(id, today))
		if err != nil {
			p.logger.Warnf("Failed to read usage for %s, keeping in-memory value: %v", id, err)
			continue
		}
		if !found {
			continue
		}
		var rec usageRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			p.logger.Warnf("Ignoring malformed usage record for %s: %v", id, err)
			continue
		}
		stored[id] = rec.Used
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.creds {
		if c.LastResetDate != today {
			c.UsedToday = 0
			c.LastResetDate = today
		}
		if used, ok := stored[c.ID]; ok && used > c.UsedToday {
			c.UsedToday = used
		}
	}
}

func (p *Pool) find(id string) *Credential {
	for _, c := range p.creds {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (p *Pool) today() string {
	return p.now().Local().Format(dateLayout)
}

func (p *Pool) untilMidnight() time.Duration {
	now := p.now().Local()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	d := midnight.Sub(now).Truncate(time.Second)
	if d < time.Second {
		d = time.Second
	}
	return d
}

func usageKey(id, date string) string {
	return fmt.Sprintf("indexing:credential:%s:%s", id, date)
}
