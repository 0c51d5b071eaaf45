package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/events"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/andresuchdata/autopo-replenish/internal/repository/memory"
	"github.com/andresuchdata/autopo-replenish/internal/repository/sqldb"
)

func sqliteStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := sqldb.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", MaxConcurrentOps: 4})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return sqldb.NewStore(db)
}

func TestPurchaseOrderServiceConcurrentReceive(t *testing.T) {
	backends := map[string]func(t *testing.T) *repository.Store{
		"memory": func(*testing.T) *repository.Store { return memory.NewStore().Repositories() },
		"sqlite": sqliteStore,
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			require.NoError(t, store.Stock.SetStock(ctx, "p1", 5, testNow.Add(-time.Hour)))
			sentAt := testNow.Add(-24 * time.Hour)
			require.NoError(t, store.PurchaseOrders.CreateBatch(ctx, []*domain.PurchaseOrder{{
				ID: "po-race", SupplierID: "sup-a", Status: domain.POStatusSent, Version: 2,
				CreatedAt: sentAt, SentAt: &sentAt, ExpectedDeliveryDate: testNow,
				TotalCost: decimal.NewFromInt(24),
				LineItems: []domain.LineItem{{ProductID: "p1", Quantity: 12, UnitCost: decimal.NewFromInt(2)}},
			}}))

			recorder := &events.Recorder{}
			svc := NewPurchaseOrderService(PurchaseOrderDeps{Store: store, Publisher: recorder, Config: testConfig()})
			svc.now = func() time.Time { return testNow }

			const callers = 20
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				succeeded int
				failures  []error
			)
			start := make(chan struct{})
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := svc.Receive(ctx, "po-race", nil)
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						succeeded++
						return
					}
					failures = append(failures, err)
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, 1, succeeded)
			require.Len(t, failures, callers-1)
			for _, err := range failures {
				assert.True(t,
					errors.Is(err, domain.ErrStaleState) || errors.Is(err, domain.ErrInvalidTransition),
					"unexpected error: %v", err)
			}

			snap, err := store.Stock.Snapshot(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, int64(17), snap.CurrentStock)

			po, err := store.PurchaseOrders.Get(ctx, "po-race")
			require.NoError(t, err)
			assert.Equal(t, domain.POStatusReceived, po.Status)
			assert.Equal(t, int64(3), po.Version)
			assert.Len(t, recorder.Events(), 1)
		})
	}
}
