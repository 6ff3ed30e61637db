package indexing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go_seoindex/internal/cache"

	"github.com/sirupsen/logrus"
)

const statsTTL = 7 * 24 * time.Hour

var errMalformedStats = errors.New("malformed stats record")

// EngineCounters tracks calls made by one engine on one day
type EngineCounters struct {
	Submitted int `json:"submitted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func (c *EngineCounters) add(success bool) {
	c.Submitted++
	if success {
		c.Succeeded++
	} else {
		c.Failed++
	}
}

// TenantCounter counts distinct tenants indexed on a day
type TenantCounter struct {
	Count int      `json:"count"`
	Slugs []string `json:"slugs"`
}

// ProductCounter counts product events indexed on a day
type ProductCounter struct {
	Count int `json:"count"`
}

// DailyStats is the persisted usage summary for one calendar date
type DailyStats struct {
	Date            string         `json:"date"`
	Primary         EngineCounters `json:"primary"`
	Broadcast       EngineCounters `json:"broadcast"`
	Sitemap         EngineCounters `json:"sitemap"`
	TenantsIndexed  TenantCounter  `json:"tenantsIndexed"`
	ProductsIndexed ProductCounter `json:"productsIndexed"`
}

// Ledger accumulates daily indexing statistics in the counter store
type Ledger struct {
	mu     sync.Mutex
	store  cache.Store
	logger *logrus.Entry
	now    func() time.Time
}

// NewLedger creates a usage ledger
func NewLedger(store cache.Store, logger *logrus.Entry) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger.WithField("component", "usage-ledger"),
		now:    time.Now,
	}
}

// RecordPrimary counts one primary engine submission
func (l *Ledger) RecordPrimary(ctx context.Context, success bool) {
	l.update(ctx, func(s *DailyStats) { s.Primary.add(success) })
}

// RecordBroadcast counts one broadcast submission
func (l *Ledger) RecordBroadcast(ctx context.Context, success bool) {
	l.update(ctx, func(s *DailyStats) { s.Broadcast.add(success) })
}

// RecordSitemap counts one sitemap ping
func (l *Ledger) RecordSitemap(ctx context.Context, success bool) {
	l.update(ctx, func(s *DailyStats) { s.Sitemap.add(success) })
}

// RecordTenant counts a tenant once per day
func (l *Ledger) RecordTenant(ctx context.Context, slug string) {
	l.update(ctx, func(s *DailyStats) {
		for _, existing := range s.TenantsIndexed.Slugs {
			if existing == slug {
				return
			}
		}
		s.TenantsIndexed.Slugs = append(s.TenantsIndexed.Slugs, slug)
		s.TenantsIndexed.Count = len(s.TenantsIndexed.Slugs)
	})
}

// RecordProduct counts every product event
func (l *Ledger) RecordProduct(ctx context.Context) {
	l.update(ctx, func(s *DailyStats) { s.ProductsIndexed.Count++ })
}

// Today returns the stats of the current day
func (l *Ledger) Today(ctx context.Context) (DailyStats, error) {
	return l.readable(ctx, l.now().Local().Format(dateLayout))
}

// Day returns the stats stored for date; a missing day is all zeros
func (l *Ledger) Day(ctx context.Context, date string) (DailyStats, error) {
	stats := DailyStats{Date: date}
	val, found, err := l.store.Get(ctx, statsKey(date))
	if err != nil {
		return stats, err
	}
	if !found {
		return stats, nil
	}
	if err := json.Unmarshal([]byte(val), &stats); err != nil {
		return DailyStats{Date: date}, fmt.Errorf("%w for %s: %v", errMalformedStats, date, err)
	}
	stats.Date = date
	return stats, nil
}

// Week returns the last seven days, newest first
func (l *Ledger) Week(ctx context.Context) ([]DailyStats, error) {
	now := l.now().Local()
	days := make([]DailyStats, 0, 7)
	for i := 0; i < 7; i++ {
		date := now.AddDate(0, 0, -i).Format(dateLayout)
		stats, err := l.readable(ctx, date)
		if err != nil {
			return nil, err
		}
		days = append(days, stats)
	}
	return days, nil
}

// readable is Day for the read API: a malformed record reads as zeros
func (l *Ledger) readable(ctx context.Context, date string) (DailyStats, error) {
	stats, err := l.Day(ctx, date)
	if errors.Is(err, errMalformedStats) {
		l.logger.Warnf("Ignoring stats: %v", err)
		return DailyStats{Date: date}, nil
	}
	return stats, err
}

func (l *Ledger) update(ctx context.Context, fn func(*DailyStats)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	date := l.now().Local().Format(dateLayout)
	stats, err := l.Day(ctx, date)
	if errors.Is(err, errMalformedStats) {
		l.logger.Warnf("Resetting stats: %v", err)
	} else if err != nil {
		// skip rather than overwrite the day with zeros
		l.logger.Errorf("Failed to load stats for %s: %v", date, err)
		return
	}
	fn(&stats)

	data, err := json.Marshal(stats)
	if err != nil {
		l.logger.Errorf("Failed to marshal stats: %v", err)
		return
	}
	if err := l.store.Set(ctx, statsKey(date), string(data), statsTTL); err != nil {
		l.logger.Errorf("Failed to persist stats for %s: %v", date, err)
	}
}

func statsKey(date string) string {
	return "indexing:stats:" + date
}
