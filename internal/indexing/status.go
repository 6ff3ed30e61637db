package indexing

import (
	"context"
	"fmt"
)

// PrimaryStatus describes the credential pool
type PrimaryStatus struct {
	Available      bool         `json:"available"`
	Credentials    int          `json:"credentials"`
	Active         int          `json:"active"`
	HasQuota       bool         `json:"hasQuota"`
	TotalQuota     int          `json:"totalQuota"`
	TotalRemaining int          `json:"totalRemaining"`
	Keys           []Credential `json:"keys"`
}

// BroadcastStatus describes the IndexNow configuration
type BroadcastStatus struct {
	Available bool     `json:"available"`
	Endpoints []string `json:"endpoints"`
}

// Status is the read-only operational view of the subsystem
type Status struct {
	Primary   PrimaryStatus   `json:"primary"`
	Broadcast BroadcastStatus `json:"broadcast"`
	Sitemap   struct {
		Available bool `json:"available"`
	} `json:"sitemap"`
	Today DailyStats `json:"today"`
}

// WeekTotals sums a week of daily stats
type WeekTotals struct {
	Primary   EngineCounters `json:"primary"`
	Broadcast EngineCounters `json:"broadcast"`
	Sitemap   EngineCounters `json:"sitemap"`
	Tenants   int            `json:"tenants"`
	Products  int            `json:"products"`
}

// DetailedStats is today's stats plus the trailing week
type DetailedStats struct {
	Today  DailyStats   `json:"today"`
	Week   []DailyStats `json:"week"`
	Totals WeekTotals   `json:"totals"`
}

// Status reports engine availability, quota and today's counters
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	var st Status

	keys := o.pool.Snapshot()
	st.Primary = PrimaryStatus{
		Available:      o.primary.Available(),
		Credentials:    o.pool.Size(),
		HasQuota:       o.pool.HasAnyQuota(),
		TotalRemaining: o.pool.TotalRemaining(),
		Keys:           keys,
	}
	for _, k := range keys {
		st.Primary.TotalQuota += k.DailyQuota
		if k.IsActive {
			st.Primary.Active++
		}
	}
	st.Broadcast = BroadcastStatus{
		Available: o.broadcast.Available(),
		Endpoints: o.broadcast.Endpoints(),
	}
	st.Sitemap.Available = true

	today, err := o.ledger.Today(ctx)
	if err != nil {
		return st, fmt.Errorf("failed to read today's stats: %w", err)
	}
	st.Today = today
	return st, nil
}

// DetailedStats returns today's and the last seven days' counters
func (o *Orchestrator) DetailedStats(ctx context.Context) (DetailedStats, error) {
	week, err := o.ledger.Week(ctx)
	if err != nil {
		return DetailedStats{}, fmt.Errorf("failed to read weekly stats: %w", err)
	}

	ds := DetailedStats{Week: week}
	if len(week) > 0 {
		ds.Today = week[0]
	}
	for _, d := range week {
		ds.Totals.Primary = sumCounters(ds.Totals.Primary, d.Primary)
		ds.Totals.Broadcast = sumCounters(ds.Totals.Broadcast, d.Broadcast)
		ds.Totals.Sitemap = sumCounters(ds.Totals.Sitemap, d.Sitemap)
		ds.Totals.Tenants += d.TenantsIndexed.Count
		ds.Totals.Products += d.ProductsIndexed.Count
	}
	return ds, nil
}

func sumCounters(a, b EngineCounters) EngineCounters {
	return EngineCounters{
		Submitted: a.Submitted + b.Submitted,
		Succeeded: a.Succeeded + b.Succeeded,
		Failed:    a.Failed + b.Failed,
	}
}
