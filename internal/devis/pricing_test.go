package devis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeTotalsEmptyInput(t *testing.T) {
	totals := ComputeTotals(nil, nil)

	require.Zero(t, totals.HT)
	require.Zero(t, totals.TTC)
	require.Zero(t, totals.Deposit)
	require.Empty(t, totals.VATByRate)
}

func TestComputeTotalsSingleLine(t *testing.T) {
	totals := ComputeTotals([]PricedItem{
		{Quantity: 2, UnitPriceHT: 100, VATRate: 20},
	}, nil)

	require.InDelta(t, 200, totals.HT, 1e-9)
	require.InDelta(t, 40, totals.VATByRate["20"], 1e-9)
	require.InDelta(t, 240, totals.TTC, 1e-9)
	require.InDelta(t, 96, totals.Deposit, 1e-9)
}

func TestComputeTotalsMixedRates(t *testing.T) {
	base := []PricedItem{
		{Quantity: 2, UnitPriceHT: 100, VATRate: 20},
	}
	addOns := []PricedItem{
		{Quantity: 1, UnitPriceHT: 50, VATRate: 10},
	}

	totals := ComputeTotals(base, addOns)

	require.InDelta(t, 250, totals.HT, 1e-9)
	require.InDelta(t, 200, totals.BaseHT, 1e-9)
	require.InDelta(t, 50, totals.AddOnsHT, 1e-9)
	require.InDelta(t, 40, totals.VATByRate["20"], 1e-9)
	require.InDelta(t, 5, totals.VATByRate["10"], 1e-9)
	require.InDelta(t, 295, totals.TTC, 1e-9)
	require.InDelta(t, 118, totals.Deposit, 1e-9)
}

func TestComputeTotalsZeroQuantityContributesNothing(t *testing.T) {
	totals := ComputeTotals([]PricedItem{
		{Quantity: 0, UnitPriceHT: 100, VATRate: 20},
		{Quantity: 1, UnitPriceHT: 30, VATRate: 10},
	}, nil)

	require.InDelta(t, 30, totals.HT, 1e-9)
	require.InDelta(t, 33, totals.TTC, 1e-9)
}

func TestComputeTotalsIsPure(t *testing.T) {
	base := []PricedItem{
		{Quantity: 3, UnitPriceHT: 19.99, VATRate: 20},
		{Quantity: 1, UnitPriceHT: 450.5, VATRate: 20},
	}
	addOns := []PricedItem{
		{Quantity: 2, UnitPriceHT: 12.34, VATRate: 10},
	}

	first := ComputeTotals(base, addOns)
	second := ComputeTotals(base, addOns)

	require.Equal(t, first, second)
}

func TestRateKeyDropsTrailingZeros(t *testing.T) {
	require.Equal(t, "10", RateKey(10))
	require.Equal(t, "20", RateKey(20))
	require.Equal(t, "5.5", RateKey(5.5))
}
