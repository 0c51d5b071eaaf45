package replenishment

import (
	"sort"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// Planning carries the per product-supplier data needed to size an order.
// A nil EOQ means the EOQ inputs are unavailable and the rule quantity is used.
type Planning struct {
	PackSize int64
	EOQ      *EOQInput
}

// PlanningKey identifies the planning entry of a product sourced from a supplier.
func PlanningKey(productID, supplierID string) string {
	return productID + "|" + supplierID
}

// GeneratorInput is everything one evaluation cycle looks at.
type GeneratorInput struct {
	Rules       []*domain.ReorderRule
	Stock       map[string]domain.StockSnapshot
	Planning    map[string]Planning
	Unavailable map[string]string // productID -> reason the stock could not be read
	GeneratedAt time.Time
}

// EvaluationWindow returns the start of the window containing now. All
// suggestions of a cycle carry this timestamp so reruns inside the same window
// are identical.
func EvaluationWindow(now time.Time, interval time.Duration) time.Time {
	now = now.UTC()
	if interval <= 0 {
		return now.Truncate(time.Second)
	}
	return now.Truncate(interval)
}

// SuggestedQuantity applies the quantity precedence: the EOQ raises the rule
// quantity but never lowers it, and is ignored when its inputs are invalid.
// The result is rounded up to the pack size.
func SuggestedQuantity(rule *domain.ReorderRule, plan Planning) (int64, domain.QuantitySource) {
	qty := rule.ReorderQuantity
	source := domain.QuantityFromRule

	if plan.EOQ != nil {
		in := *plan.EOQ
		in.PackSize = plan.PackSize
		if eoq, err := EconomicOrderQuantity(in); err == nil && eoq > qty {
			qty = eoq
			source = domain.QuantityFromEOQ
		}
	}

	return RoundToPack(qty, plan.PackSize), source
}

// Suggest evaluates a single rule against a stock snapshot.
func Suggest(rule *domain.ReorderRule, stock domain.StockSnapshot, plan Planning, at time.Time) (domain.ReorderSuggestion, bool) {
	if !rule.IsActive || stock.CurrentStock > rule.ReorderPoint {
		return domain.ReorderSuggestion{}, false
	}

	qty, source := SuggestedQuantity(rule, plan)
	if qty <= 0 {
		return domain.ReorderSuggestion{}, false
	}

	return domain.ReorderSuggestion{
		ProductID:         rule.ProductID,
		SupplierID:        rule.SupplierID,
		SuggestedQuantity: qty,
		TriggerStock:      stock.CurrentStock,
		RuleID:            rule.ID,
		GeneratedAt:       at,
		QuantitySource:    source,
	}, true
}

// Generate runs one evaluation cycle. It never mutates its input and returns
// the suggestions sorted by supplier, product and rule.
func Generate(in GeneratorInput) domain.SuggestionBatch {
	batch := domain.SuggestionBatch{
		GeneratedAt: in.GeneratedAt,
		Suggestions: []domain.ReorderSuggestion{},
		Skipped:     []domain.SkippedRule{},
	}

	for _, rule := range in.Rules {
		if rule == nil || !rule.IsActive {
			continue
		}

		stock, ok := in.Stock[rule.ProductID]
		if !ok {
			reason := in.Unavailable[rule.ProductID]
			if reason == "" {
				reason = "insufficient data: no stock snapshot"
			}
			batch.Skipped = append(batch.Skipped, domain.SkippedRule{
				RuleID:    rule.ID,
				ProductID: rule.ProductID,
				Reason:    reason,
			})
			continue
		}

		plan := in.Planning[PlanningKey(rule.ProductID, rule.SupplierID)]
		if s, ok := Suggest(rule, stock, plan, in.GeneratedAt); ok {
			batch.Suggestions = append(batch.Suggestions, s)
		}
	}

	sort.Slice(batch.Suggestions, func(i, j int) bool {
		a, b := batch.Suggestions[i], batch.Suggestions[j]
		if a.SupplierID != b.SupplierID {
			return a.SupplierID < b.SupplierID
		}
		if a.ProductID != b.ProductID {
			return a.ProductID < b.ProductID
		}
		return a.RuleID < b.RuleID
	})
	sort.Slice(batch.Skipped, func(i, j int) bool {
		return batch.Skipped[i].RuleID < batch.Skipped[j].RuleID
	})

	return batch
}
