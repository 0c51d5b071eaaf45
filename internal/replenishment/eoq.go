package replenishment

import (
	"math"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// DaysPerYear converts mean daily demand into annual demand.
const DaysPerYear = 365

// EOQInput carries the economic order quantity parameters. PackSize <= 1
// means no pack rounding.
type EOQInput struct {
	AnnualDemand float64 `json:"annual_demand"`
	OrderingCost float64 `json:"ordering_cost"`
	HoldingCost  float64 `json:"holding_cost"`
	PackSize     int64   `json:"pack_size"`
}

// EconomicOrderQuantity returns sqrt(2DS/H) rounded up to whole units and then
// up to the pack multiple. A non-positive holding cost or a result beyond
// MaxUnits is reported as invalid input so the caller can fall back to the
// rule quantity.
func EconomicOrderQuantity(in EOQInput) (int64, error) {
	verr := &domain.ValidationError{}
	if in.HoldingCost <= 0 || math.IsNaN(in.HoldingCost) {
		verr.Add("holding_cost", "must be greater than 0, got %v", in.HoldingCost)
	}
	if in.AnnualDemand < 0 || math.IsNaN(in.AnnualDemand) {
		verr.Add("annual_demand", "must be >= 0, got %v", in.AnnualDemand)
	}
	if in.OrderingCost < 0 || math.IsNaN(in.OrderingCost) {
		verr.Add("ordering_cost", "must be >= 0, got %v", in.OrderingCost)
	}
	if err := verr.OrNil(); err != nil {
		return 0, err
	}

	eoq := ceilUnits(math.Sqrt(2 * in.AnnualDemand * in.OrderingCost / in.HoldingCost))
	if !withinUnits(eoq) {
		return 0, domain.NewValidationError("eoq", "exceeds %d units, got %v", int64(MaxUnits), eoq)
	}
	qty := RoundToPack(int64(eoq), in.PackSize)
	if qty > MaxUnits {
		return 0, domain.NewValidationError("eoq", "exceeds %d units after pack rounding, got %d", int64(MaxUnits), qty)
	}
	return qty, nil
}

// RoundToPack rounds qty up to the next multiple of packSize.
func RoundToPack(qty, packSize int64) int64 {
	if qty <= 0 {
		return 0
	}
	if packSize <= 1 {
		return qty
	}
	if rem := qty % packSize; rem != 0 {
		qty += packSize - rem
	}
	return qty
}
