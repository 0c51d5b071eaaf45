package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

func TestProjectionServiceProject(t *testing.T) {
	f := newFixture(t)
	f.addDemand(t, "p1", repeat(2, 90)...)

	projection, err := f.projections.Project(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, int64(5), projection.CurrentStock)
	assert.InDelta(t, 2.0, projection.AverageDailyDemand, 1e-9)
	require.NotNil(t, projection.DaysUntilStockout)
	assert.InDelta(t, 2.5, *projection.DaysUntilStockout, 1e-9)
	require.NotNil(t, projection.StockoutDate)
	assert.Equal(t, testNow.Add(60*time.Hour), *projection.StockoutDate)
	assert.Equal(t, 7, projection.LeadTimeDays)
	assert.True(t, projection.AtRisk)
}

func TestProjectionServiceSparseHistory(t *testing.T) {
	f := newFixture(t)
	f.addSale(t, "p1", 60, 30)

	projection, err := f.projections.Project(context.Background(), "p1")
	require.NoError(t, err)

	assert.False(t, projection.InsufficientData)
	assert.InDelta(t, 1.0/3, projection.AverageDailyDemand, 1e-9)
	require.NotNil(t, projection.DaysUntilStockout)
	assert.InDelta(t, 15.0, *projection.DaysUntilStockout, 1e-9)
	assert.False(t, projection.AtRisk)
}

func TestProjectionServiceWithoutDemand(t *testing.T) {
	f := newFixture(t)

	projection, err := f.projections.Project(context.Background(), "p3")
	require.NoError(t, err)
	assert.Nil(t, projection.DaysUntilStockout)
	assert.Nil(t, projection.StockoutDate)
	assert.True(t, projection.InsufficientData)
	assert.False(t, projection.AtRisk)

	_, err = f.projections.Project(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
