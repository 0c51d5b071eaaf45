package replenishment

import (
	"strings"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// ValidateReorderRule checks 0 <= minStock <= reorderPoint < maxStock (when
// maxStock is bounded) and reorderQuantity > 0. Every violated field is
// reported; nothing is coerced.
func ValidateReorderRule(rule *domain.ReorderRule) error {
	verr := &domain.ValidationError{}

	if strings.TrimSpace(rule.ProductID) == "" {
		verr.Add("product_id", "is required")
	}
	if strings.TrimSpace(rule.SupplierID) == "" {
		verr.Add("supplier_id", "is required")
	}
	if rule.ReorderQuantity <= 0 {
		verr.Add("reorder_quantity", "must be greater than 0, got %d", rule.ReorderQuantity)
	}
	if rule.ReorderPoint < 0 {
		verr.Add("reorder_point", "must be >= 0, got %d", rule.ReorderPoint)
	}
	if rule.MinStock < 0 {
		verr.Add("min_stock", "must be >= 0, got %d", rule.MinStock)
	}
	if rule.MinStock > rule.ReorderPoint {
		verr.Add("min_stock", "must not exceed reorder_point (%d > %d)", rule.MinStock, rule.ReorderPoint)
	}
	if rule.MaxStock != nil && *rule.MaxStock <= rule.ReorderPoint {
		verr.Add("max_stock", "must be greater than reorder_point (%d <= %d)", *rule.MaxStock, rule.ReorderPoint)
	}
	if rule.LeadTimeDays < 0 {
		verr.Add("lead_time_days", "must be >= 0, got %d", rule.LeadTimeDays)
	}

	return verr.OrNil()
}
