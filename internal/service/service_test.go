package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/cache"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/events"
	"github.com/andresuchdata/autopo-replenish/internal/lock"
	"github.com/andresuchdata/autopo-replenish/internal/repository/memory"
)

var testNow = time.Date(2024, 3, 1, 10, 7, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeExporter struct {
	mu     sync.Mutex
	orders []string
	err    error
}

func (f *fakeExporter) Export(ctx context.Context, po *domain.PurchaseOrder) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.orders = append(f.orders, po.ID)
	return "purchase-orders/" + po.SupplierID + "/" + po.ID + ".csv", nil
}

func testConfig() config.ReplenishmentConfig {
	return config.ReplenishmentConfig{
		ServiceLevel:         0.95,
		OrderingCost:         50,
		HoldingCostRate:      0.25,
		DemandWindowDays:     90,
		EvaluationInterval:   15 * time.Minute,
		ExcludeOnOrder:       true,
		ReadRetryAttempts:    3,
		ReadRetryBackoff:     time.Millisecond,
		ScorerMinOrders:      3,
		StockReadConcurrency: 4,
	}
}

type fixture struct {
	mem         *memory.Store
	clock       *testClock
	rules       *RuleService
	suggestions *SuggestionService
	orders      *PurchaseOrderService
	suppliers   *SupplierService
	projections *ProjectionService
	events      *events.Recorder
	exporter    *fakeExporter
}

// newFixture seeds two suppliers, three products and stock for p1 and p2.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := memory.NewStore()

	require.NoError(t, mem.Catalog.UpsertSupplier(ctx, &domain.Supplier{
		ID: "sup-a", Name: "Acme", LeadTimeDays: 7, UnitCost: decimal.RequireFromString("2.00"), DefectRate: 0.1,
	}))
	require.NoError(t, mem.Catalog.UpsertSupplier(ctx, &domain.Supplier{
		ID: "sup-b", Name: "Borneo", LeadTimeDays: 3, UnitCost: decimal.RequireFromString("1.25"),
	}))
	require.NoError(t, mem.Catalog.UpsertProduct(ctx, &domain.Product{ID: "p1", Name: "Cleanser", SupplierID: "sup-a", PackSize: 1}))
	require.NoError(t, mem.Catalog.UpsertProduct(ctx, &domain.Product{ID: "p2", Name: "Toner", SupplierID: "sup-b", PackSize: 4}))
	require.NoError(t, mem.Catalog.UpsertProduct(ctx, &domain.Product{ID: "p3", Name: "Serum", SupplierID: "sup-a", PackSize: 1}))
	require.NoError(t, mem.Stock.SetStock(ctx, "p1", 5, testNow.Add(-time.Hour)))
	require.NoError(t, mem.Stock.SetStock(ctx, "p2", 3, testNow.Add(-time.Hour)))

	clock := &testClock{now: testNow}
	store := mem.Repositories()
	cfg := testConfig()
	suggCache := cache.NewNoopSuggestionCache()
	perfCache := cache.NewNoopSupplierPerformanceCache()
	recorder := &events.Recorder{}
	exporter := &fakeExporter{}

	f := &fixture{
		mem:         mem,
		clock:       clock,
		rules:       NewRuleService(store, suggCache, cfg),
		suggestions: NewSuggestionService(store, suggCache, cfg),
		suppliers:   NewSupplierService(store, perfCache, cfg),
		projections: NewProjectionService(store, cfg),
		events:      recorder,
		exporter:    exporter,
	}
	f.orders = NewPurchaseOrderService(PurchaseOrderDeps{
		Store:            store,
		Suggestions:      f.suggestions,
		Locker:           lock.NewLocal(),
		Publisher:        recorder,
		Exporter:         exporter,
		PerformanceCache: perfCache,
		SuggestionCache:  suggCache,
		Config:           cfg,
	})

	f.rules.now = clock.Now
	f.suggestions.now = clock.Now
	f.orders.now = clock.Now
	f.suppliers.now = clock.Now
	f.projections.now = clock.Now
	return f
}

func (f *fixture) addRule(t *testing.T, productID, supplierID string, rop, qty int64) *domain.ReorderRule {
	t.Helper()
	rule, err := f.rules.Create(context.Background(), &domain.ReorderRule{
		ProductID:       productID,
		SupplierID:      supplierID,
		ReorderPoint:    rop,
		ReorderQuantity: qty,
		LeadTimeDays:    7,
		IsActive:        true,
	})
	require.NoError(t, err)
	return rule
}

// addDemand records units per day for the days before testNow.
func (f *fixture) addDemand(t *testing.T, productID string, units ...float64) {
	t.Helper()
	points := make([]domain.DemandHistoryPoint, len(units))
	for i, u := range units {
		points[i] = domain.DemandHistoryPoint{
			ProductID: productID,
			Date:      testNow.AddDate(0, 0, -(len(units) - i)),
			UnitsSold: u,
		}
	}
	require.NoError(t, f.mem.Demand.Append(context.Background(), points))
}

// addSale records a single sale daysAgo days before testNow.
func (f *fixture) addSale(t *testing.T, productID string, daysAgo int, units float64) {
	t.Helper()
	require.NoError(t, f.mem.Demand.Append(context.Background(), []domain.DemandHistoryPoint{{
		ProductID: productID,
		Date:      testNow.AddDate(0, 0, -daysAgo),
		UnitsSold: units,
	}}))
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

var errBoom = domain.Transient("stock.snapshot", errors.New("connection reset"))
