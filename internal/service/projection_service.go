package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/replenishment"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/andresuchdata/autopo-replenish/internal/retry"
)

// Beyond this horizon no stockout date is reported.
const maxProjectedDays = 100 * 365

type ProjectionService struct {
	catalog repository.CatalogRepository
	stock   repository.StockRepository
	demand  repository.DemandRepository
	cfg     config.ReplenishmentConfig
	policy  retry.Policy
	now     func() time.Time
}

func NewProjectionService(store *repository.Store, cfg config.ReplenishmentConfig) *ProjectionService {
	return &ProjectionService{
		catalog: store.Catalog,
		stock:   store.Stock,
		demand:  store.Demand,
		cfg:     cfg,
		policy:  readPolicy(cfg),
		now:     time.Now,
	}
}

// Project estimates when productID runs out at its average daily demand. The
// product is at risk when its supplier needs longer to deliver than the stock
// lasts.
func (s *ProjectionService) Project(ctx context.Context, productID string) (*domain.StockoutProjection, error) {
	product, err := retry.Do(ctx, s.policy, "catalog.product", func(ctx context.Context) (*domain.Product, error) {
		return s.catalog.GetProduct(ctx, productID)
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	current, asOf := product.CurrentStock, now
	snap, err := retry.Do(ctx, s.policy, "stock.snapshot", func(ctx context.Context) (domain.StockSnapshot, error) {
		return s.stock.Snapshot(ctx, productID)
	})
	switch {
	case err == nil:
		current, asOf = snap.CurrentStock, snap.AsOf
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	units, err := loadDemand(ctx, s.demand, s.policy, productID, now, s.cfg.DemandWindowDays)
	if err != nil {
		return nil, err
	}
	stats := replenishment.Stats(units)

	projection := &domain.StockoutProjection{
		ProductID:          productID,
		CurrentStock:       current,
		AverageDailyDemand: stats.Mean,
		InsufficientData:   stats.Samples == 0,
		AsOf:               asOf,
	}

	if product.SupplierID != "" {
		supplier, err := retry.Do(ctx, s.policy, "catalog.supplier", func(ctx context.Context) (*domain.Supplier, error) {
			return s.catalog.GetSupplier(ctx, product.SupplierID)
		})
		switch {
		case err == nil:
			projection.LeadTimeDays = supplier.LeadTimeDays
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	days, ok := replenishment.DaysUntilStockout(float64(current), stats.Mean)
	if !ok {
		return projection, nil
	}

	projection.DaysUntilStockout = &days
	if days < maxProjectedDays {
		date := now.Add(time.Duration(math.Round(days * float64(24*time.Hour))))
		projection.StockoutDate = &date
	}
	projection.AtRisk = float64(projection.LeadTimeDays) > days
	return projection, nil
}
