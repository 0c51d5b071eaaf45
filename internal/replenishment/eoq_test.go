package replenishment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

func TestEconomicOrderQuantity(t *testing.T) {
	tests := []struct {
		name string
		in   EOQInput
		want int64
	}{
		{name: "classic", in: EOQInput{AnnualDemand: 1200, OrderingCost: 50, HoldingCost: 2}, want: 245},
		{name: "pack of 12", in: EOQInput{AnnualDemand: 1200, OrderingCost: 50, HoldingCost: 2, PackSize: 12}, want: 252},
		{name: "exact square", in: EOQInput{AnnualDemand: 100, OrderingCost: 2, HoldingCost: 1}, want: 20},
		{name: "no demand", in: EOQInput{AnnualDemand: 0, OrderingCost: 50, HoldingCost: 2}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EconomicOrderQuantity(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEconomicOrderQuantityInvalidHoldingCost(t *testing.T) {
	for _, h := range []float64{0, -1} {
		_, err := EconomicOrderQuantity(EOQInput{AnnualDemand: 1200, OrderingCost: 50, HoldingCost: h})
		require.ErrorIs(t, err, domain.ErrInvalidInput)

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "holding_cost", verr.Fields[0].Field)
	}
}

func TestEconomicOrderQuantityRejectsOverflow(t *testing.T) {
	_, err := EconomicOrderQuantity(EOQInput{AnnualDemand: 1e30, OrderingCost: 1e10, HoldingCost: 1e-10})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "eoq", verr.Fields[0].Field)

	got, err := EconomicOrderQuantity(EOQInput{AnnualDemand: 1e12, OrderingCost: 50, HoldingCost: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(10000000), got)
}

func TestEconomicOrderQuantityMonotonicInDemand(t *testing.T) {
	var prev int64
	for demand := 0.0; demand <= 5000; demand += 250 {
		got, err := EconomicOrderQuantity(EOQInput{AnnualDemand: demand, OrderingCost: 40, HoldingCost: 3})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestRoundToPack(t *testing.T) {
	assert.Equal(t, int64(10), RoundToPack(10, 0))
	assert.Equal(t, int64(10), RoundToPack(10, 1))
	assert.Equal(t, int64(10), RoundToPack(10, 5))
	assert.Equal(t, int64(15), RoundToPack(11, 5))
	assert.Equal(t, int64(0), RoundToPack(0, 5))
	assert.Equal(t, int64(0), RoundToPack(-3, 5))
}
