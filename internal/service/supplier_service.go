package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/cache"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/replenishment"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/andresuchdata/autopo-replenish/internal/retry"
)

// SupplierService reports supplier reliability from received orders.
type SupplierService struct {
	catalog repository.CatalogRepository
	orders  repository.PurchaseOrderRepository
	cache   cache.SupplierPerformanceCache
	scorer  *replenishment.Scorer
	policy  retry.Policy
	now     func() time.Time
}

func NewSupplierService(store *repository.Store, perf cache.SupplierPerformanceCache, cfg config.ReplenishmentConfig) *SupplierService {
	return &SupplierService{
		catalog: store.Catalog,
		orders:  store.PurchaseOrders,
		cache:   perf,
		scorer:  replenishment.NewScorer(replenishment.DefaultScoreWeights, cfg.ScorerMinOrders),
		policy:  readPolicy(cfg),
		now:     time.Now,
	}
}

// Performance returns the cached report of supplierID or computes it.
func (s *SupplierService) Performance(ctx context.Context, supplierID string) (*domain.SupplierPerformance, error) {
	supplier, err := retry.Do(ctx, s.policy, "catalog.supplier", func(ctx context.Context) (*domain.Supplier, error) {
		return s.catalog.GetSupplier(ctx, supplierID)
	})
	if err != nil {
		return nil, err
	}

	report, hit, err := s.cache.Get(ctx, supplier.ID)
	if err != nil {
		log.Warn().Err(err).Str("supplier_id", supplier.ID).Msg("Supplier performance cache read failed")
	}
	if hit {
		return report, nil
	}

	return s.compute(ctx, supplier)
}

// ScoreAll recomputes every supplier, bypassing the cache.
func (s *SupplierService) ScoreAll(ctx context.Context) ([]*domain.SupplierPerformance, error) {
	suppliers, err := retry.Do(ctx, s.policy, "catalog.suppliers", func(ctx context.Context) ([]*domain.Supplier, error) {
		return s.catalog.ListSuppliers(ctx)
	})
	if err != nil {
		return nil, err
	}

	reports := make([]*domain.SupplierPerformance, 0, len(suppliers))
	for _, supplier := range suppliers {
		report, err := s.compute(ctx, supplier)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (s *SupplierService) compute(ctx context.Context, supplier *domain.Supplier) (*domain.SupplierPerformance, error) {
	received, err := retry.Do(ctx, s.policy, "purchase_orders.list", func(ctx context.Context) ([]*domain.PurchaseOrder, error) {
		return s.orders.List(ctx, domain.PurchaseOrderFilter{
			SupplierID: supplier.ID,
			Statuses:   []domain.POStatus{domain.POStatusReceived},
		})
	})
	if err != nil {
		return nil, err
	}

	report := s.scorer.Score(supplier.ID, received, supplier.DefectRate, s.now().UTC())
	sideChannel("performance_cache", s.cache.Set(ctx, &report), "Failed to cache supplier performance")
	return &report, nil
}
