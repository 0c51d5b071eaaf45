package replenishment

import (
	"math"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// ScoreWeights blends the three reliability components into one score.
type ScoreWeights struct {
	OnTime      float64
	Consistency float64
	Quality     float64
}

// DefaultScoreWeights favours punctuality over lead time consistency and
// defect rate.
var DefaultScoreWeights = ScoreWeights{OnTime: 0.5, Consistency: 0.3, Quality: 0.2}

const (
	// NeutralScore is reported for suppliers without enough history.
	NeutralScore = 50.0
	// DefaultMinOrders is the history needed before a supplier is scored.
	DefaultMinOrders = 3
)

// Scorer computes supplier reliability from received purchase orders.
type Scorer struct {
	weights   ScoreWeights
	minOrders int
}

// NewScorer creates a scorer. Zero weights or minOrders fall back to defaults.
func NewScorer(weights ScoreWeights, minOrders int) *Scorer {
	if weights.OnTime+weights.Consistency+weights.Quality <= 0 {
		weights = DefaultScoreWeights
	}
	if minOrders < 1 {
		minOrders = DefaultMinOrders
	}
	return &Scorer{weights: weights, minOrders: minOrders}
}

// Score derives the performance report of supplierID. Orders that are not
// received or lack a sent timestamp are ignored. defectRate is clamped to
// [0, 1].
func (s *Scorer) Score(supplierID string, orders []*domain.PurchaseOrder, defectRate float64, now time.Time) domain.SupplierPerformance {
	defectRate = clamp01(defectRate)

	var (
		onTime    int
		leadTimes []float64
	)
	for _, po := range orders {
		if po.Status != domain.POStatusReceived || po.ReceivedAt == nil || po.SentAt == nil {
			continue
		}
		if !po.ReceivedAt.After(po.ExpectedDeliveryDate) {
			onTime++
		}
		leadTimes = append(leadTimes, po.ReceivedAt.Sub(*po.SentAt).Hours()/24)
	}

	report := domain.SupplierPerformance{
		SupplierID: supplierID,
		DefectRate: defectRate,
		SampleSize: len(leadTimes),
		ComputedAt: now,
	}

	if len(leadTimes) < s.minOrders {
		report.Score = NeutralScore
		report.Neutral = true
		if len(leadTimes) > 0 {
			report.OnTimeRate = float64(onTime) / float64(len(leadTimes))
			report.AverageLeadTimeDays, report.LeadTimeVariance = meanVariance(leadTimes)
		}
		return report
	}

	report.OnTimeRate = float64(onTime) / float64(len(leadTimes))
	report.AverageLeadTimeDays, report.LeadTimeVariance = meanVariance(leadTimes)

	total := s.weights.OnTime + s.weights.Consistency + s.weights.Quality
	blended := s.weights.OnTime*report.OnTimeRate +
		s.weights.Consistency*(1/(1+report.LeadTimeVariance)) +
		s.weights.Quality*(1-defectRate)
	report.Score = math.Round(100*blended/total*100) / 100

	return report
}

// meanVariance returns the mean and population variance.
func meanVariance(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, sq / float64(len(values))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
