package replenishment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

func rule(id, product, supplier string, rop, qty int64, active bool) *domain.ReorderRule {
	return &domain.ReorderRule{
		ID:              id,
		ProductID:       product,
		SupplierID:      supplier,
		ReorderPoint:    rop,
		ReorderQuantity: qty,
		IsActive:        active,
	}
}

func TestEvaluationWindow(t *testing.T) {
	now := time.Date(2024, 5, 2, 10, 47, 13, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 2, 10, 45, 0, 0, time.UTC), EvaluationWindow(now, 15*time.Minute))
	assert.Equal(t, time.Date(2024, 5, 2, 10, 47, 13, 0, time.UTC), EvaluationWindow(now, 0))
}

func TestSuggestedQuantity(t *testing.T) {
	r := rule("r1", "p1", "s1", 10, 20, true)
	classic := &EOQInput{AnnualDemand: 1200, OrderingCost: 50, HoldingCost: 2}

	tests := []struct {
		name       string
		plan       Planning
		want       int64
		wantSource domain.QuantitySource
	}{
		{name: "rule only", plan: Planning{}, want: 20, wantSource: domain.QuantityFromRule},
		{name: "rule rounded to pack", plan: Planning{PackSize: 12}, want: 24, wantSource: domain.QuantityFromRule},
		{name: "eoq raises quantity", plan: Planning{EOQ: classic}, want: 245, wantSource: domain.QuantityFromEOQ},
		{name: "eoq raises and rounds", plan: Planning{PackSize: 12, EOQ: classic}, want: 252, wantSource: domain.QuantityFromEOQ},
		{name: "eoq never lowers", plan: Planning{EOQ: &EOQInput{AnnualDemand: 10, OrderingCost: 1, HoldingCost: 5}}, want: 20, wantSource: domain.QuantityFromRule},
		{name: "invalid eoq falls back", plan: Planning{EOQ: &EOQInput{AnnualDemand: 1200, OrderingCost: 50}}, want: 20, wantSource: domain.QuantityFromRule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source := SuggestedQuantity(r, tt.plan)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestGenerate(t *testing.T) {
	at := time.Date(2024, 5, 2, 10, 45, 0, 0, time.UTC)
	in := GeneratorInput{
		Rules: []*domain.ReorderRule{
			rule("r3", "p3", "s1", 10, 30, true),  // above reorder point
			rule("r2", "p2", "s2", 10, 15, true),  // at reorder point
			rule("r1", "p1", "s1", 10, 20, true),  // below reorder point
			rule("r4", "p4", "s1", 10, 20, false), // inactive
			rule("r5", "p5", "s1", 10, 20, true),  // no snapshot
			rule("r6", "p6", "s2", 10, 20, true),  // unreadable
			nil,
		},
		Stock: map[string]domain.StockSnapshot{
			"p1": {ProductID: "p1", CurrentStock: 4},
			"p2": {ProductID: "p2", CurrentStock: 10},
			"p3": {ProductID: "p3", CurrentStock: 11},
			"p4": {ProductID: "p4", CurrentStock: 0},
		},
		Planning: map[string]Planning{
			PlanningKey("p2", "s2"): {PackSize: 4},
		},
		Unavailable: map[string]string{"p6": "insufficient data: stock ledger unavailable"},
		GeneratedAt: at,
	}

	batch := Generate(in)

	require.Len(t, batch.Suggestions, 2)
	assert.Equal(t, domain.ReorderSuggestion{
		ProductID: "p1", SupplierID: "s1", SuggestedQuantity: 20, TriggerStock: 4,
		RuleID: "r1", GeneratedAt: at, QuantitySource: domain.QuantityFromRule,
	}, batch.Suggestions[0])
	assert.Equal(t, "p2", batch.Suggestions[1].ProductID)
	assert.Equal(t, int64(16), batch.Suggestions[1].SuggestedQuantity)

	require.Len(t, batch.Skipped, 2)
	assert.Equal(t, "r5", batch.Skipped[0].RuleID)
	assert.Equal(t, "insufficient data: no stock snapshot", batch.Skipped[0].Reason)
	assert.Equal(t, "insufficient data: stock ledger unavailable", batch.Skipped[1].Reason)

	for _, s := range batch.Suggestions {
		assert.NotEqual(t, "r4", s.RuleID)
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	in := GeneratorInput{
		Rules: []*domain.ReorderRule{
			rule("r1", "p1", "s1", 10, 20, true),
			rule("r2", "p2", "s1", 50, 5, true),
		},
		Stock: map[string]domain.StockSnapshot{
			"p1": {ProductID: "p1", CurrentStock: 3},
			"p2": {ProductID: "p2", CurrentStock: 7},
		},
		GeneratedAt: EvaluationWindow(time.Now(), time.Hour),
	}

	first := Generate(in)
	second := Generate(in)
	assert.Equal(t, first, second)
	assert.Len(t, first.Suggestions, 2)
}

func TestGenerateNeverSuggestsInactiveRules(t *testing.T) {
	in := GeneratorInput{
		Rules: []*domain.ReorderRule{rule("r1", "p1", "s1", 100, 20, false)},
		Stock: map[string]domain.StockSnapshot{"p1": {ProductID: "p1", CurrentStock: -4}},
	}

	batch := Generate(in)
	assert.Empty(t, batch.Suggestions)
	assert.Empty(t, batch.Skipped)
}
