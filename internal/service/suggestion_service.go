package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/autopo-replenish/internal/cache"
	"github.com/andresuchdata/autopo-replenish/internal/coalesce"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/metrics"
	"github.com/andresuchdata/autopo-replenish/internal/replenishment"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/andresuchdata/autopo-replenish/internal/retry"
	"github.com/andresuchdata/autopo-replenish/internal/telemetry"
)

const (
	TriggerScheduled = "scheduled"
	TriggerOnDemand  = "on_demand"

	refreshKey = "evaluation"
)

// SuggestionService runs evaluation cycles over the active rules.
type SuggestionService struct {
	store  *repository.Store
	cache  cache.SuggestionCache
	cfg    config.ReplenishmentConfig
	policy retry.Policy
	group  coalesce.Group[*domain.SuggestionBatch]
	now    func() time.Time
}

func NewSuggestionService(store *repository.Store, suggestions cache.SuggestionCache, cfg config.ReplenishmentConfig) *SuggestionService {
	return &SuggestionService{
		store:  store,
		cache:  suggestions,
		cfg:    cfg,
		policy: readPolicy(cfg),
		now:    time.Now,
	}
}

// Current returns the batch of the current evaluation window, evaluating it
// when no cached batch exists.
func (s *SuggestionService) Current(ctx context.Context) (*domain.SuggestionBatch, error) {
	window := replenishment.EvaluationWindow(s.now(), s.cfg.EvaluationInterval)

	batch, hit, err := s.cache.Get(ctx, window)
	if err != nil {
		log.Warn().Err(err).Msg("Suggestion cache read failed")
	}
	if hit {
		return batch, nil
	}

	return s.Refresh(ctx, TriggerOnDemand)
}

// Refresh runs an evaluation cycle. Concurrent refreshes share one cycle.
func (s *SuggestionService) Refresh(ctx context.Context, trigger string) (*domain.SuggestionBatch, error) {
	batch, shared, err := s.group.Do(ctx, refreshKey, func(ctx context.Context) (*domain.SuggestionBatch, error) {
		return s.evaluate(ctx, trigger)
	})
	if shared {
		metrics.CoalescedRefreshesTotal.Inc()
	}
	return batch, err
}

func (s *SuggestionService) evaluate(ctx context.Context, trigger string) (batch *domain.SuggestionBatch, err error) {
	ctx, span := telemetry.StartSpan(ctx, "suggestions.evaluate")
	span.SetAttributes(attribute.String("trigger", trigger))
	start := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
		}
		metrics.EvaluationCyclesTotal.WithLabelValues(trigger, result).Inc()
		metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
		telemetry.EndSpan(span, err)
	}()

	window := replenishment.EvaluationWindow(s.now(), s.cfg.EvaluationInterval)

	rules, err := retry.Do(ctx, s.policy, "rules.list", func(ctx context.Context) ([]*domain.ReorderRule, error) {
		return s.store.Rules.List(ctx, domain.RuleFilter{ActiveOnly: true})
	})
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}

	in, err := s.gather(ctx, rules, window)
	if err != nil {
		return nil, err
	}

	generated := replenishment.Generate(in)
	if s.cfg.ExcludeOnOrder {
		if err := s.excludeOnOrder(ctx, &generated); err != nil {
			return nil, err
		}
	}

	metrics.SuggestionsGeneratedTotal.Add(float64(len(generated.Suggestions)))
	metrics.RulesSkippedTotal.Add(float64(len(generated.Skipped)))
	span.SetAttributes(
		attribute.Int("rules", len(rules)),
		attribute.Int("suggestions", len(generated.Suggestions)),
		attribute.Int("skipped", len(generated.Skipped)),
	)

	log.Info().
		Str("trigger", trigger).
		Time("window", window).
		Int("rules", len(rules)).
		Int("suggestions", len(generated.Suggestions)).
		Int("skipped", len(generated.Skipped)).
		Msg("Evaluation cycle completed")

	sideChannel("suggestion_cache", s.cache.Set(ctx, &generated), "Failed to cache suggestions")
	return &generated, nil
}

// gather reads the stock of every rule product and the planning data of every
// rule, StockReadConcurrency at a time. A read that still fails after the
// read policy degrades to a skipped rule; only cancellation fails the cycle.
func (s *SuggestionService) gather(ctx context.Context, rules []*domain.ReorderRule, window time.Time) (replenishment.GeneratorInput, error) {
	in := replenishment.GeneratorInput{
		Rules:       rules,
		Stock:       make(map[string]domain.StockSnapshot),
		Planning:    make(map[string]replenishment.Planning),
		Unavailable: make(map[string]string),
		GeneratedAt: window,
	}

	products := make(map[string]struct{})
	pairs := make(map[string]*domain.ReorderRule)
	for _, r := range rules {
		products[r.ProductID] = struct{}{}
		pairs[replenishment.PlanningKey(r.ProductID, r.SupplierID)] = r
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	limit := s.cfg.StockReadConcurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for productID := range products {
		productID := productID
		g.Go(func() error {
			snap, err := retry.Do(gctx, s.policy, "stock.snapshot", func(ctx context.Context) (domain.StockSnapshot, error) {
				return s.store.Stock.Snapshot(ctx, productID)
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				in.Stock[productID] = snap
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return err
			case errors.Is(err, domain.ErrNotFound):
				in.Unavailable[productID] = "insufficient data: no stock level recorded"
			default:
				log.Warn().Err(err).Str("product_id", productID).Msg("Stock read failed, skipping product")
				in.Unavailable[productID] = "insufficient data: stock read failed"
			}
			return nil
		})
	}

	for key, rule := range pairs {
		key, rule := key, rule
		g.Go(func() error {
			plan := s.planning(gctx, rule)
			mu.Lock()
			in.Planning[key] = plan
			mu.Unlock()
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return replenishment.GeneratorInput{}, err
	}
	return in, nil
}

// planning collects the pack size and EOQ inputs of a rule. Missing catalog or
// demand data leaves EOQ nil so the rule quantity applies.
func (s *SuggestionService) planning(ctx context.Context, rule *domain.ReorderRule) replenishment.Planning {
	plan := replenishment.Planning{PackSize: 1}

	product, err := retry.Do(ctx, s.policy, "catalog.product", func(ctx context.Context) (*domain.Product, error) {
		return s.store.Catalog.GetProduct(ctx, rule.ProductID)
	})
	if err == nil && product.PackSize > 0 {
		plan.PackSize = product.PackSize
	}

	unitCost, err := unitCost(ctx, s.store.Catalog, s.policy, rule.SupplierID, rule.ProductID)
	if err != nil || !unitCost.IsPositive() {
		return plan
	}

	units, err := loadDemand(ctx, s.store.Demand, s.policy, rule.ProductID, s.now().UTC(), s.cfg.DemandWindowDays)
	if err != nil || len(units) == 0 {
		return plan
	}

	stats := replenishment.Stats(units)
	plan.EOQ = &replenishment.EOQInput{
		AnnualDemand: stats.Mean * replenishment.DaysPerYear,
		OrderingCost: s.cfg.OrderingCost,
		HoldingCost:  unitCost.InexactFloat64() * s.cfg.HoldingCostRate,
	}
	return plan
}

// excludeOnOrder drops suggestions whose product is already on an open order
// of the same supplier.
func (s *SuggestionService) excludeOnOrder(ctx context.Context, batch *domain.SuggestionBatch) error {
	open, err := retry.Do(ctx, s.policy, "purchase_orders.list", func(ctx context.Context) ([]*domain.PurchaseOrder, error) {
		return s.store.PurchaseOrders.List(ctx, domain.PurchaseOrderFilter{
			Statuses: []domain.POStatus{domain.POStatusDraft, domain.POStatusSent},
		})
	})
	if err != nil {
		return fmt.Errorf("list open purchase orders: %w", err)
	}

	onOrder := make(map[string]string)
	for _, po := range open {
		for _, li := range po.LineItems {
			onOrder[replenishment.PlanningKey(li.ProductID, po.SupplierID)] = po.ID
		}
	}

	kept := batch.Suggestions[:0]
	for _, sg := range batch.Suggestions {
		if orderID, ok := onOrder[replenishment.PlanningKey(sg.ProductID, sg.SupplierID)]; ok {
			batch.Skipped = append(batch.Skipped, domain.SkippedRule{
				RuleID:    sg.RuleID,
				ProductID: sg.ProductID,
				Reason:    "already on open purchase order " + orderID,
			})
			continue
		}
		kept = append(kept, sg)
	}
	batch.Suggestions = kept
	sort.Slice(batch.Skipped, func(i, j int) bool { return batch.Skipped[i].RuleID < batch.Skipped[j].RuleID })
	return nil
}

// unitCost returns the supplier price of a product: the catalog entry when one
// exists, otherwise the supplier default.
func unitCost(ctx context.Context, catalog repository.CatalogRepository, policy retry.Policy, supplierID, productID string) (decimal.Decimal, error) {
	entry, err := retry.Do(ctx, policy, "catalog.entry", func(ctx context.Context) (*domain.SupplierCatalogEntry, error) {
		return catalog.CatalogEntry(ctx, supplierID, productID)
	})
	if err == nil {
		return entry.UnitCost, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return decimal.Zero, err
	}

	supplier, err := retry.Do(ctx, policy, "catalog.supplier", func(ctx context.Context) (*domain.Supplier, error) {
		return catalog.GetSupplier(ctx, supplierID)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return supplier.UnitCost, nil
}
