package replenishment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

func receivedOrder(sent time.Time, leadDays, promisedDays int) *domain.PurchaseOrder {
	received := sent.AddDate(0, 0, leadDays)
	return &domain.PurchaseOrder{
		SupplierID:           "s1",
		Status:               domain.POStatusReceived,
		SentAt:               &sent,
		ReceivedAt:           &received,
		ExpectedDeliveryDate: sent.AddDate(0, 0, promisedDays),
	}
}

func TestScorerNeutralBelowMinimumHistory(t *testing.T) {
	sent := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	now := sent.AddDate(0, 1, 0)

	report := NewScorer(DefaultScoreWeights, 3).Score("s1", []*domain.PurchaseOrder{
		receivedOrder(sent, 5, 5),
		receivedOrder(sent, 8, 5),
	}, 0.1, now)

	assert.True(t, report.Neutral)
	assert.Equal(t, NeutralScore, report.Score)
	assert.Equal(t, 2, report.SampleSize)
	assert.InDelta(t, 0.5, report.OnTimeRate, 1e-9)
	assert.Equal(t, now, report.ComputedAt)
}

func TestScorerPerfectSupplier(t *testing.T) {
	sent := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	orders := []*domain.PurchaseOrder{
		receivedOrder(sent, 5, 5),
		receivedOrder(sent.AddDate(0, 0, 10), 5, 6),
		receivedOrder(sent.AddDate(0, 0, 20), 5, 7),
	}

	report := NewScorer(DefaultScoreWeights, 3).Score("s1", orders, 0, sent)

	assert.False(t, report.Neutral)
	assert.InDelta(t, 1.0, report.OnTimeRate, 1e-9)
	assert.InDelta(t, 5.0, report.AverageLeadTimeDays, 1e-9)
	assert.InDelta(t, 0.0, report.LeadTimeVariance, 1e-9)
	assert.InDelta(t, 100.0, report.Score, 1e-9)
}

func TestScorerBlendsComponents(t *testing.T) {
	sent := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	orders := []*domain.PurchaseOrder{
		receivedOrder(sent, 4, 5),
		receivedOrder(sent, 6, 5),
		receivedOrder(sent, 4, 3),
		receivedOrder(sent, 6, 7),
		// ignored: not received
		{SupplierID: "s1", Status: domain.POStatusSent, SentAt: &sent},
		{SupplierID: "s1", Status: domain.POStatusCancelled},
	}

	report := NewScorer(ScoreWeights{}, 0).Score("s1", orders, 0.1, sent)

	assert.Equal(t, 4, report.SampleSize)
	assert.InDelta(t, 0.5, report.OnTimeRate, 1e-9)
	assert.InDelta(t, 5.0, report.AverageLeadTimeDays, 1e-9)
	assert.InDelta(t, 1.0, report.LeadTimeVariance, 1e-9)
	// 0.5*0.5 + 0.3*0.5 + 0.2*0.9
	assert.InDelta(t, 58.0, report.Score, 1e-9)
}

func TestScorerClampsDefectRate(t *testing.T) {
	sent := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	orders := []*domain.PurchaseOrder{
		receivedOrder(sent, 5, 5),
		receivedOrder(sent, 5, 5),
		receivedOrder(sent, 5, 5),
	}

	report := NewScorer(DefaultScoreWeights, 3).Score("s1", orders, 3, sent)
	assert.Equal(t, 1.0, report.DefectRate)
	assert.InDelta(t, 80.0, report.Score, 1e-9)
}
