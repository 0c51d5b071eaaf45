// Package replenishment holds the pure decision logic of the replenishment
// engine: reorder point and EOQ math, rule validation, suggestion generation,
// purchase order consolidation, the PO lifecycle, supplier scoring and
// stockout projection. Nothing in this package talks to a backing store.
package replenishment

import (
	"math"
	"sort"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// MinDemandSamples is the smallest history for which a standard deviation is
// computed. Shorter histories use the mean only.
const MinDemandSamples = 2

// MaxUnits bounds any computed quantity. Beyond 2^53 a float64 no longer holds
// whole units exactly and the int64 conversion is undefined.
const MaxUnits = 1 << 53

type zPoint struct {
	level float64
	z     float64
}

// Standard normal quantiles for common service levels. Values between two
// points are linearly interpolated, values outside are clamped to the ends.
var zTable = []zPoint{
	{0.50, 0.000},
	{0.75, 0.674},
	{0.80, 0.842},
	{0.85, 1.036},
	{0.90, 1.282},
	{0.95, 1.645},
	{0.975, 1.960},
	{0.98, 2.054},
	{0.99, 2.326},
	{0.995, 2.576},
	{0.999, 3.090},
}

// ZScore maps a service level to a standard normal quantile.
func ZScore(serviceLevel float64) float64 {
	if serviceLevel <= zTable[0].level {
		return zTable[0].z
	}
	last := zTable[len(zTable)-1]
	if serviceLevel >= last.level {
		return last.z
	}

	i := sort.Search(len(zTable), func(i int) bool { return zTable[i].level >= serviceLevel })
	hi := zTable[i]
	if hi.level == serviceLevel {
		return hi.z
	}
	lo := zTable[i-1]
	frac := (serviceLevel - lo.level) / (hi.level - lo.level)
	return lo.z + frac*(hi.z-lo.z)
}

// DemandStats summarises a demand window.
type DemandStats struct {
	Mean    float64
	StdDev  float64
	Samples int
}

// Stats computes the mean and sample standard deviation of daily demand.
func Stats(units []float64) DemandStats {
	n := len(units)
	if n == 0 {
		return DemandStats{}
	}

	var sum float64
	for _, u := range units {
		sum += u
	}
	mean := sum / float64(n)

	if n < MinDemandSamples {
		return DemandStats{Mean: mean, Samples: n}
	}

	var sq float64
	for _, u := range units {
		d := u - mean
		sq += d * d
	}

	return DemandStats{
		Mean:    mean,
		StdDev:  math.Sqrt(sq / float64(n-1)),
		Samples: n,
	}
}

// DailySeries spreads history over every UTC day from from to to, both
// inclusive. Days without a recorded point count as zero demand, so a single
// sale in a long window yields a small mean. It returns nil when no point
// falls in the window.
func DailySeries(history []domain.DemandHistoryPoint, from, to time.Time) []float64 {
	from, to = utcDay(from), utcDay(to)
	if to.Before(from) {
		return nil
	}

	days := int(to.Sub(from).Hours()/24) + 1
	units := make([]float64, days)
	recorded := false
	for _, p := range history {
		d := utcDay(p.Date)
		if d.Before(from) || d.After(to) {
			continue
		}
		units[int(d.Sub(from).Hours()/24)] += p.UnitsSold
		recorded = true
	}
	if !recorded {
		return nil
	}
	return units
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ReorderPointResult is the outcome of a reorder point calculation.
type ReorderPointResult struct {
	MeanDailyDemand float64 `json:"mean_daily_demand"`
	StdDev          float64 `json:"std_dev"`
	Z               float64 `json:"z"`
	SafetyStock     float64 `json:"safety_stock"`
	ReorderPoint    int64   `json:"reorder_point"`
	Samples         int     `json:"samples"`
}

// CalculateReorderPoint derives the safety stock and reorder point from a
// daily demand series, a lead time and a target service level.
func CalculateReorderPoint(units []float64, leadTimeDays int, serviceLevel float64) (ReorderPointResult, error) {
	verr := &domain.ValidationError{}
	if leadTimeDays < 0 {
		verr.Add("lead_time_days", "must be >= 0, got %d", leadTimeDays)
	}
	if serviceLevel <= 0 || serviceLevel >= 1 || math.IsNaN(serviceLevel) {
		verr.Add("service_level", "must be within (0, 1), got %v", serviceLevel)
	}
	if err := verr.OrNil(); err != nil {
		return ReorderPointResult{}, err
	}

	stats := Stats(units)
	z := ZScore(serviceLevel)
	lead := float64(leadTimeDays)

	// 1. Safety stock = z * sigma * sqrt(lead time)
	safety := z * stats.StdDev * math.Sqrt(lead)

	// 2. Reorder point = mean * lead time + safety stock, whole units
	rop := ceilUnits(stats.Mean*lead + safety)
	if !withinUnits(rop) {
		return ReorderPointResult{}, domain.NewValidationError("reorder_point", "exceeds %d units, got %v", int64(MaxUnits), rop)
	}

	return ReorderPointResult{
		MeanDailyDemand: stats.Mean,
		StdDev:          stats.StdDev,
		Z:               z,
		SafetyStock:     safety,
		ReorderPoint:    int64(rop),
		Samples:         stats.Samples,
	}, nil
}

// ceilUnits rounds a quantity up to whole units, ignoring float noise such as
// 0.30000000000000004.
func ceilUnits(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Ceil(v - 1e-9)
}

func withinUnits(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v <= MaxUnits
}
