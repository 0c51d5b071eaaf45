package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/filter"
)

func TestRuleServiceCreateValidates(t *testing.T) {
	f := newFixture(t)

	_, err := f.rules.Create(context.Background(), &domain.ReorderRule{
		ProductID:    "p1",
		ReorderPoint: 10,
		MinStock:     12,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Fields))
	for _, fe := range verr.Fields {
		fields = append(fields, fe.Field)
	}
	assert.Contains(t, fields, "supplier_id")
	assert.Contains(t, fields, "reorder_quantity")
	assert.Contains(t, fields, "min_stock")
}

func TestRuleServiceLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rule := f.addRule(t, " p1 ", "sup-a", 10, 20)
	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, "p1", rule.ProductID)
	assert.Equal(t, testNow, rule.CreatedAt)

	toggled, err := f.rules.SetActive(ctx, rule.ID, false)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)
	assert.Equal(t, int64(10), toggled.ReorderPoint)

	maxStock := int64(100)
	updated, err := f.rules.Update(ctx, rule.ID, &domain.ReorderRule{
		ProductID:       "p1",
		SupplierID:      "sup-a",
		ReorderPoint:    15,
		ReorderQuantity: 30,
		MaxStock:        &maxStock,
		IsActive:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, rule.ID, updated.ID)
	assert.Equal(t, rule.CreatedAt, updated.CreatedAt)

	_, err = f.rules.Update(ctx, "missing", updated)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, f.rules.Delete(ctx, rule.ID))
	_, err = f.rules.Get(ctx, rule.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRuleServiceListWithConditions(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "p1", "sup-a", 10, 20)
	f.addRule(t, "p2", "sup-b", 2, 10)
	f.addRule(t, "p3", "sup-a", 30, 5)

	conds, err := filter.ParseAll([]string{"reorder_point:gte:10", "supplier_id:eq:sup-a"}, RuleSchema)
	require.NoError(t, err)

	rules, err := f.rules.List(context.Background(), domain.RuleFilter{}, conds)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "p1", rules[0].ProductID)
	assert.Equal(t, "p3", rules[1].ProductID)

	rules, err = f.rules.List(context.Background(), domain.RuleFilter{ProductID: "p2"}, nil)
	require.NoError(t, err)
	require.Len(t, rules, 1)
}

func TestRuleServiceRecalculate(t *testing.T) {
	f := newFixture(t)
	rule := f.addRule(t, "p1", "sup-a", 10, 20)
	f.addDemand(t, "p1", repeat(4, 90)...)

	out, err := f.rules.Recalculate(context.Background(), rule.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), out.Previous)
	assert.Equal(t, int64(28), out.Rule.ReorderPoint)
	assert.Equal(t, 90, out.Result.Samples)

	stored, err := f.rules.Get(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(28), stored.ReorderPoint)
}

func TestRuleServiceRecalculateSparseHistory(t *testing.T) {
	f := newFixture(t)
	rule := f.addRule(t, "p1", "sup-a", 10, 20)
	f.addSale(t, "p1", 60, 30)

	out, err := f.rules.Recalculate(context.Background(), rule.ID, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 90, out.Result.Samples)
	assert.InDelta(t, 1.0/3, out.Result.MeanDailyDemand, 1e-9)
	assert.Equal(t, int64(3), out.Rule.ReorderPoint)
}

func TestRuleServiceRecalculateKeepsInvalidResultUnsaved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	maxStock := int64(25)
	rule, err := f.rules.Create(ctx, &domain.ReorderRule{
		ProductID: "p1", SupplierID: "sup-a", ReorderPoint: 10, ReorderQuantity: 20,
		MaxStock: &maxStock, LeadTimeDays: 7, IsActive: true,
	})
	require.NoError(t, err)
	f.addDemand(t, "p1", repeat(4, 90)...)

	_, err = f.rules.Recalculate(ctx, rule.ID, 0.95)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	stored, err := f.rules.Get(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.ReorderPoint)
}
