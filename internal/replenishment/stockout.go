package replenishment

import "math"

// DaysUntilStockout returns how many days the current stock lasts at the given
// depletion rate. ok is false when no stockout is projected because there is
// no demand. The result is never negative.
func DaysUntilStockout(currentStock, averageDailyDemand float64) (days float64, ok bool) {
	if averageDailyDemand <= 0 || math.IsNaN(averageDailyDemand) {
		return 0, false
	}
	if currentStock <= 0 {
		return 0, true
	}
	return currentStock / averageDailyDemand, true
}
