package replenishment

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// PriceList maps PlanningKey(product, supplier) to the catalog unit cost.
type PriceList map[string]decimal.Decimal

// SuggestionsToInputs turns suggestions into order requests priced from the
// supplier catalog. A suggestion without a catalog price is rejected rather
// than priced at zero.
func SuggestionsToInputs(suggestions []domain.ReorderSuggestion, prices PriceList) ([]domain.PurchaseOrderInput, error) {
	verr := &domain.ValidationError{}
	inputs := make([]domain.PurchaseOrderInput, 0, len(suggestions))

	for i, s := range suggestions {
		cost, ok := prices[PlanningKey(s.ProductID, s.SupplierID)]
		if !ok {
			verr.Add(fmt.Sprintf("suggestions[%d].unit_cost", i),
				"no catalog price for product %s from supplier %s", s.ProductID, s.SupplierID)
			continue
		}
		inputs = append(inputs, domain.PurchaseOrderInput{
			SupplierID: s.SupplierID,
			LineItems: []domain.LineItem{{
				ProductID: s.ProductID,
				Quantity:  s.SuggestedQuantity,
				UnitCost:  cost,
			}},
		})
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return inputs, nil
}

// Consolidate merges every request for the same supplier into one request
// and every line for the same product (and unit cost) into one line. The
// output is sorted by supplier, lines by product.
func Consolidate(inputs []domain.PurchaseOrderInput) ([]domain.PurchaseOrderInput, error) {
	if err := validateInputs(inputs); err != nil {
		return nil, err
	}

	type lineKey struct {
		productID string
		cost      string
	}

	bySupplier := make(map[string]map[lineKey]*domain.LineItem)
	for _, in := range inputs {
		supplierID := strings.TrimSpace(in.SupplierID)
		lines, ok := bySupplier[supplierID]
		if !ok {
			lines = make(map[lineKey]*domain.LineItem)
			bySupplier[supplierID] = lines
		}
		for _, li := range in.LineItems {
			key := lineKey{productID: li.ProductID, cost: li.UnitCost.String()}
			if existing, ok := lines[key]; ok {
				existing.Quantity += li.Quantity
				continue
			}
			merged := li
			lines[key] = &merged
		}
	}

	out := make([]domain.PurchaseOrderInput, 0, len(bySupplier))
	for supplierID, lines := range bySupplier {
		items := make([]domain.LineItem, 0, len(lines))
		for _, li := range lines {
			items = append(items, *li)
		}
		sort.Slice(items, func(i, j int) bool {
			if items[i].ProductID != items[j].ProductID {
				return items[i].ProductID < items[j].ProductID
			}
			return items[i].UnitCost.LessThan(items[j].UnitCost)
		})
		out = append(out, domain.PurchaseOrderInput{SupplierID: supplierID, LineItems: items})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SupplierID < out[j].SupplierID })
	return out, nil
}

func validateInputs(inputs []domain.PurchaseOrderInput) error {
	verr := &domain.ValidationError{}
	if len(inputs) == 0 {
		verr.Add("line_items", "at least one purchase order input is required")
	}

	for i, in := range inputs {
		if strings.TrimSpace(in.SupplierID) == "" {
			verr.Add(fmt.Sprintf("inputs[%d].supplier_id", i), "is required")
		}
		if len(in.LineItems) == 0 {
			verr.Add(fmt.Sprintf("inputs[%d].line_items", i), "at least one line item is required")
		}
		for j, li := range in.LineItems {
			field := fmt.Sprintf("inputs[%d].line_items[%d]", i, j)
			if strings.TrimSpace(li.ProductID) == "" {
				verr.Add(field+".product_id", "is required")
			}
			if li.Quantity <= 0 {
				verr.Add(field+".quantity", "must be greater than 0, got %d", li.Quantity)
			}
			if li.UnitCost.IsNegative() {
				verr.Add(field+".unit_cost", "must be >= 0, got %s", li.UnitCost)
			}
		}
	}

	return verr.OrNil()
}

// TotalCost sums quantity x unit cost over the lines.
func TotalCost(lines []domain.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range lines {
		total = total.Add(li.Subtotal())
	}
	return total
}

// NewPurchaseOrder materialises a consolidated request as a draft order
// expected leadTimeDays after creation.
func NewPurchaseOrder(id string, in domain.PurchaseOrderInput, createdAt time.Time, leadTimeDays int) *domain.PurchaseOrder {
	lines := make([]domain.LineItem, len(in.LineItems))
	copy(lines, in.LineItems)

	return &domain.PurchaseOrder{
		ID:                   id,
		SupplierID:           in.SupplierID,
		LineItems:            lines,
		Status:               domain.POStatusDraft,
		CreatedAt:            createdAt,
		TotalCost:            TotalCost(lines),
		ExpectedDeliveryDate: createdAt.AddDate(0, 0, leadTimeDays),
		Version:              1,
	}
}
