package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog view of a sellable item.
type Product struct {
	ID           string `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	CurrentStock int64  `json:"current_stock" db:"current_stock"`
	SupplierID   string `json:"supplier_id" db:"supplier_id"`
	PackSize     int64  `json:"pack_size" db:"pack_size"`
}

// Supplier is an entry of the supplier directory.
type Supplier struct {
	ID           string          `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	LeadTimeDays int             `json:"lead_time_days" db:"lead_time_days"`
	UnitCost     decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	DefectRate   float64         `json:"defect_rate" db:"defect_rate"`
}

// SupplierCatalogEntry overrides the supplier default unit cost for one product.
type SupplierCatalogEntry struct {
	SupplierID string          `json:"supplier_id" db:"supplier_id"`
	ProductID  string          `json:"product_id" db:"product_id"`
	UnitCost   decimal.Decimal `json:"unit_cost" db:"unit_cost"`
}

// DemandHistoryPoint is the number of units sold for a product on one day.
type DemandHistoryPoint struct {
	ProductID string    `json:"product_id" db:"product_id"`
	Date      time.Time `json:"date" db:"demand_date"`
	UnitsSold float64   `json:"units_sold" db:"units_sold"`
}

// StockSnapshot is the authoritative stock level read from the stock ledger.
type StockSnapshot struct {
	ProductID    string    `json:"product_id" db:"product_id"`
	CurrentStock int64     `json:"current_stock" db:"current_stock"`
	AsOf         time.Time `json:"as_of" db:"as_of"`
}

// ReorderRule holds the replenishment thresholds for a product and supplier.
// A nil MaxStock means the maximum is unbounded.
type ReorderRule struct {
	ID              string    `json:"id" db:"id"`
	ProductID       string    `json:"product_id" db:"product_id"`
	SupplierID      string    `json:"supplier_id" db:"supplier_id"`
	ReorderPoint    int64     `json:"reorder_point" db:"reorder_point"`
	ReorderQuantity int64     `json:"reorder_quantity" db:"reorder_quantity"`
	MinStock        int64     `json:"min_stock" db:"min_stock"`
	MaxStock        *int64    `json:"max_stock" db:"max_stock"`
	LeadTimeDays    int       `json:"lead_time_days" db:"lead_time_days"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// RuleFilter narrows a rule listing. Empty fields match everything.
type RuleFilter struct {
	ProductID  string
	SupplierID string
	ActiveOnly bool
}

// QuantitySource tells where a suggested quantity came from.
type QuantitySource string

const (
	QuantityFromRule QuantitySource = "rule"
	QuantityFromEOQ  QuantitySource = "eoq"
)

// ReorderSuggestion is an ephemeral recommendation to reorder a product.
type ReorderSuggestion struct {
	ProductID         string         `json:"product_id"`
	SupplierID        string         `json:"supplier_id"`
	SuggestedQuantity int64          `json:"suggested_quantity"`
	TriggerStock      int64          `json:"trigger_stock"`
	RuleID            string         `json:"rule_id"`
	GeneratedAt       time.Time      `json:"generated_at"`
	QuantitySource    QuantitySource `json:"quantity_source"`
}

// SkippedRule records a rule the generator could not evaluate.
type SkippedRule struct {
	RuleID    string `json:"rule_id"`
	ProductID string `json:"product_id"`
	Reason    string `json:"reason"`
}

// SuggestionBatch is the output of one evaluation cycle.
type SuggestionBatch struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Suggestions []ReorderSuggestion `json:"suggestions"`
	Skipped     []SkippedRule       `json:"skipped"`
}

// LineItem is one product line requested on a purchase order.
type LineItem struct {
	ProductID string          `json:"product_id" db:"product_id"`
	Quantity  int64           `json:"quantity" db:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost" db:"unit_cost"`
}

// Subtotal returns quantity times unit cost.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitCost.Mul(decimal.NewFromInt(li.Quantity))
}

// PurchaseOrderInput is a transient request handed to the builder.
type PurchaseOrderInput struct {
	SupplierID string     `json:"supplier_id"`
	LineItems  []LineItem `json:"line_items"`
}

// PurchaseOrder is a persisted order to one supplier.
type PurchaseOrder struct {
	ID                   string          `json:"id" db:"id"`
	SupplierID           string          `json:"supplier_id" db:"supplier_id"`
	LineItems            []LineItem      `json:"line_items" db:"-"`
	Status               POStatus        `json:"status" db:"status"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	TotalCost            decimal.Decimal `json:"total_cost" db:"total_cost"`
	ExpectedDeliveryDate time.Time       `json:"expected_delivery_date" db:"expected_delivery_date"`
	SentAt               *time.Time      `json:"sent_at,omitempty" db:"sent_at"`
	ReceivedAt           *time.Time      `json:"received_at,omitempty" db:"received_at"`
	CancelledAt          *time.Time      `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason         string          `json:"cancel_reason,omitempty" db:"cancel_reason"`
	Version              int64           `json:"version" db:"version"`
}

// OrderedQuantity returns the total quantity of productID on the order.
func (po *PurchaseOrder) OrderedQuantity(productID string) int64 {
	var qty int64
	for _, li := range po.LineItems {
		if li.ProductID == productID {
			qty += li.Quantity
		}
	}
	return qty
}

// PurchaseOrderFilter narrows a purchase order listing.
type PurchaseOrderFilter struct {
	SupplierID string
	Statuses   []POStatus
	Limit      int
	Offset     int
}

// StatusTransition describes one optimistic state change of a purchase order.
type StatusTransition struct {
	OrderID         string
	From            POStatus
	To              POStatus
	ExpectedVersion int64
	At              time.Time
	Reason          string
}

// SupplierPerformance is a derived reliability report for a supplier.
type SupplierPerformance struct {
	SupplierID          string    `json:"supplier_id"`
	OnTimeRate          float64   `json:"on_time_rate"`
	AverageLeadTimeDays float64   `json:"average_lead_time_days"`
	LeadTimeVariance    float64   `json:"lead_time_variance"`
	DefectRate          float64   `json:"defect_rate"`
	Score               float64   `json:"score"`
	SampleSize          int       `json:"sample_size"`
	Neutral             bool      `json:"neutral"`
	ComputedAt          time.Time `json:"computed_at"`
}

// StockoutProjection estimates when a product runs out.
// DaysUntilStockout is nil when no stockout is projected.
type StockoutProjection struct {
	ProductID          string     `json:"product_id"`
	CurrentStock       int64      `json:"current_stock"`
	AverageDailyDemand float64    `json:"average_daily_demand"`
	DaysUntilStockout  *float64   `json:"days_until_stockout"`
	StockoutDate       *time.Time `json:"stockout_date,omitempty"`
	LeadTimeDays       int        `json:"lead_time_days"`
	AtRisk             bool       `json:"at_risk"`
	InsufficientData   bool       `json:"insufficient_data"`
	AsOf               time.Time  `json:"as_of"`
}
