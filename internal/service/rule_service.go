package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/andresuchdata/autopo-replenish/internal/cache"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/filter"
	"github.com/andresuchdata/autopo-replenish/internal/replenishment"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/andresuchdata/autopo-replenish/internal/retry"
)

// RuleSchema lists the rule fields accepted by list filters.
var RuleSchema = filter.Schema{
	"id":               filter.KindString,
	"product_id":       filter.KindString,
	"supplier_id":      filter.KindString,
	"reorder_point":    filter.KindNumber,
	"reorder_quantity": filter.KindNumber,
	"min_stock":        filter.KindNumber,
	"max_stock":        filter.KindNumber,
	"lead_time_days":   filter.KindNumber,
	"is_active":        filter.KindBool,
	"created_at":       filter.KindTime,
	"updated_at":       filter.KindTime,
}

func ruleRecord(r *domain.ReorderRule) filter.Record {
	f := filter.Fields{
		"id":               filter.String(r.ID),
		"product_id":       filter.String(r.ProductID),
		"supplier_id":      filter.String(r.SupplierID),
		"reorder_point":    filter.Int(r.ReorderPoint),
		"reorder_quantity": filter.Int(r.ReorderQuantity),
		"min_stock":        filter.Int(r.MinStock),
		"lead_time_days":   filter.Int(int64(r.LeadTimeDays)),
		"is_active":        filter.Bool(r.IsActive),
		"created_at":       filter.Time(r.CreatedAt),
		"updated_at":       filter.Time(r.UpdatedAt),
	}
	if r.MaxStock != nil {
		f["max_stock"] = filter.Int(*r.MaxStock)
	}
	return f
}

// Recalculation is the outcome of recomputing a rule's reorder point.
type Recalculation struct {
	Rule     *domain.ReorderRule              `json:"rule"`
	Previous int64                            `json:"previous_reorder_point"`
	Result   replenishment.ReorderPointResult `json:"result"`
}

type RuleService struct {
	rules       repository.RuleRepository
	demand      repository.DemandRepository
	suggestions cache.SuggestionCache
	cfg         config.ReplenishmentConfig
	policy      retry.Policy
	now         func() time.Time
}

func NewRuleService(store *repository.Store, suggestions cache.SuggestionCache, cfg config.ReplenishmentConfig) *RuleService {
	return &RuleService{
		rules:       store.Rules,
		demand:      store.Demand,
		suggestions: suggestions,
		cfg:         cfg,
		policy:      readPolicy(cfg),
		now:         time.Now,
	}
}

func (s *RuleService) Create(ctx context.Context, rule *domain.ReorderRule) (*domain.ReorderRule, error) {
	normalizeRule(rule)
	if err := replenishment.ValidateReorderRule(rule); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rule.ID = uuid.NewString()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}
	s.rulesChanged(ctx)
	return rule, nil
}

// Update replaces the thresholds of rule id. Identity and creation time are
// kept from the stored rule.
func (s *RuleService) Update(ctx context.Context, id string, rule *domain.ReorderRule) (*domain.ReorderRule, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	normalizeRule(rule)
	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.now().UTC()
	if err := replenishment.ValidateReorderRule(rule); err != nil {
		return nil, err
	}

	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, err
	}
	s.rulesChanged(ctx)
	return rule, nil
}

func (s *RuleService) Delete(ctx context.Context, id string) error {
	if err := s.rules.Delete(ctx, id); err != nil {
		return err
	}
	s.rulesChanged(ctx)
	return nil
}

// SetActive toggles a rule without touching its thresholds.
func (s *RuleService) SetActive(ctx context.Context, id string, active bool) (*domain.ReorderRule, error) {
	if err := s.rules.SetActive(ctx, id, active, s.now().UTC()); err != nil {
		return nil, err
	}
	s.rulesChanged(ctx)
	return s.Get(ctx, id)
}

func (s *RuleService) Get(ctx context.Context, id string) (*domain.ReorderRule, error) {
	return retry.Do(ctx, s.policy, "rules.get", func(ctx context.Context) (*domain.ReorderRule, error) {
		return s.rules.Get(ctx, id)
	})
}

// List returns the rules matching f and every condition.
func (s *RuleService) List(ctx context.Context, f domain.RuleFilter, conds []filter.Condition) ([]*domain.ReorderRule, error) {
	rules, err := retry.Do(ctx, s.policy, "rules.list", func(ctx context.Context) ([]*domain.ReorderRule, error) {
		return s.rules.List(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	return filter.Apply(rules, conds, ruleRecord), nil
}

// Recalculate derives the reorder point of rule id from its demand window and
// lead time. The rule is only saved when it stays valid. A serviceLevel of 0
// uses the configured level.
func (s *RuleService) Recalculate(ctx context.Context, id string, serviceLevel float64) (*Recalculation, error) {
	if serviceLevel == 0 {
		serviceLevel = s.cfg.ServiceLevel
	}

	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	units, err := loadDemand(ctx, s.demand, s.policy, rule.ProductID, now, s.cfg.DemandWindowDays)
	if err != nil {
		return nil, fmt.Errorf("load demand for %s: %w", rule.ProductID, err)
	}

	result, err := replenishment.CalculateReorderPoint(units, rule.LeadTimeDays, serviceLevel)
	if err != nil {
		return nil, err
	}

	out := &Recalculation{Previous: rule.ReorderPoint, Result: result}
	rule.ReorderPoint = result.ReorderPoint
	rule.UpdatedAt = now
	if err := replenishment.ValidateReorderRule(rule); err != nil {
		return nil, err
	}
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, err
	}
	s.rulesChanged(ctx)

	out.Rule = rule
	return out, nil
}

func (s *RuleService) rulesChanged(ctx context.Context) {
	sideChannel("suggestion_cache", s.suggestions.InvalidateAll(ctx), "Failed to invalidate suggestion cache")
}

func normalizeRule(rule *domain.ReorderRule) {
	rule.ProductID = strings.TrimSpace(rule.ProductID)
	rule.SupplierID = strings.TrimSpace(rule.SupplierID)
}
