package indexing

import (
	"context"
	"testing"
	"time"

	"go_seoindex/internal/cache"
)

func TestLedger_Additivity(t *testing.T) {
	ledger := NewLedger(cache.NewMemoryStore(), testLogger())
	ctx := context.Background()

	outcomes := []bool{true, false, true, true, false}
	for _, ok := range outcomes {
		ledger.RecordPrimary(ctx, ok)
		ledger.RecordBroadcast(ctx, !ok)
		ledger.RecordSitemap(ctx, ok)
	}

	today, err := ledger.Today(ctx)
	if err != nil {
		t.Fatalf("Today() failed: %v", err)
	}

	for name, c := range map[string]EngineCounters{
		"primary":   today.Primary,
		"broadcast": today.Broadcast,
		"sitemap":   today.Sitemap,
	} {
		if c.Submitted != len(outcomes) {
			t.Errorf("%s: expected %d submitted, got %d", name, len(outcomes), c.Submitted)
		}
		if c.Submitted != c.Succeeded+c.Failed {
			t.Errorf("%s: submitted %d != succeeded %d + failed %d", name, c.Submitted, c.Succeeded, c.Failed)
		}
	}
	if today.Primary.Succeeded != 3 || today.Broadcast.Succeeded != 2 {
		t.Errorf("Unexpected success counts: primary=%d broadcast=%d", today.Primary.Succeeded, today.Broadcast.Succeeded)
	}
}

func TestLedger_TenantsAreDistinct(t *testing.T) {
	ledger := NewLedger(cache.NewMemoryStore(), testLogger())
	ctx := context.Background()

	for _, slug := range []string{"acme", "beta", "acme", "acme"} {
		ledger.RecordTenant(ctx, slug)
	}
	ledger.RecordProduct(ctx)
	ledger.RecordProduct(ctx)

	today, _ := ledger.Today(ctx)
	if today.TenantsIndexed.Count != 2 {
		t.Errorf("Expected 2 distinct tenants, got %d (%v)", today.TenantsIndexed.Count, today.TenantsIndexed.Slugs)
	}
	if today.ProductsIndexed.Count != 2 {
		t.Errorf("Expected every product event to count, got %d", today.ProductsIndexed.Count)
	}
}

func TestLedger_Week(t *testing.T) {
	store := cache.NewMemoryStore()
	ledger := NewLedger(store, testLogger())
	ctx := context.Background()

	day := time.Date(2026, 5, 20, 10, 0, 0, 0, time.Local)
	ledger.now = func() time.Time { return day.AddDate(0, 0, -2) }
	ledger.RecordPrimary(ctx, true)
	ledger.now = func() time.Time { return day }
	ledger.RecordPrimary(ctx, false)

	week, err := ledger.Week(ctx)
	if err != nil {
		t.Fatalf("Week() failed: %v", err)
	}
	if len(week) != 7 {
		t.Fatalf("Expected 7 days, got %d", len(week))
	}
	if week[0].Date != "2026-05-20" || week[0].Primary.Failed != 1 {
		t.Errorf("Unexpected newest day: %+v", week[0])
	}
	if week[2].Date != "2026-05-18" || week[2].Primary.Succeeded != 1 {
		t.Errorf("Unexpected day -2: %+v", week[2])
	}
	if week[1].Primary.Submitted != 0 {
		t.Errorf("Expected empty day to be zero, got %+v", week[1])
	}
}

func TestLedger_MalformedRecordIsReset(t *testing.T) {
	store := cache.NewMemoryStore()
	ledger := NewLedger(store, testLogger())
	ctx := context.Background()

	today := time.Now().Local().Format(dateLayout)
	store.Set(ctx, statsKey(today), "{broken", time.Hour)

	ledger.RecordProduct(ctx)
	stats, err := ledger.Today(ctx)
	if err != nil {
		t.Fatalf("Today() failed: %v", err)
	}
	if stats.ProductsIndexed.Count != 1 {
		t.Errorf("Expected malformed record to be replaced, got %+v", stats)
	}
}

func TestLedger_MalformedRecordReadsAsZero(t *testing.T) {
	store := cache.NewMemoryStore()
	ledger := NewLedger(store, testLogger())
	ctx := context.Background()

	yesterday := time.Now().Local().AddDate(0, 0, -1).Format(dateLayout)
	store.Set(ctx, statsKey(yesterday), "not json", time.Hour)

	week, err := ledger.Week(ctx)
	if err != nil {
		t.Fatalf("Week() failed: %v", err)
	}
	if week[1].Date != yesterday || week[1].Primary.Submitted != 0 {
		t.Errorf("Expected zeroed stats for %s, got %+v", yesterday, week[1])
	}
}
