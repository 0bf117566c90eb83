package calc

import (
	"testing"
	"time"

	"perpmonitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTravelPercentLong(t *testing.T) {
	// At entry the position has travelled nowhere.
	assert.Equal(t, 0.0, TravelPercent(models.PositionLong, 100, 100, 50))

	// Halfway to liquidation.
	assert.InDelta(t, -50.0, TravelPercent(models.PositionLong, 100, 75, 50), 1e-9)

	// At liquidation.
	assert.InDelta(t, -100.0, TravelPercent(models.PositionLong, 100, 50, 50), 1e-9)

	// Halfway to the symmetric profit target (entry 100, liq 50, target 150).
	assert.InDelta(t, 50.0, TravelPercent(models.PositionLong, 100, 125, 50), 1e-9)
	assert.InDelta(t, 100.0, TravelPercent(models.PositionLong, 100, 150, 50), 1e-9)
}

func TestTravelPercentShort(t *testing.T) {
	// Short losing: price rises toward liquidation.
	assert.InDelta(t, -25.0, TravelPercent(models.PositionShort, 100, 115, 160), 1e-9)
	assert.InDelta(t, -100.0, TravelPercent(models.PositionShort, 100, 160, 160), 1e-9)

	// Short winning: price falls toward the mirrored target (40).
	assert.InDelta(t, 50.0, TravelPercent(models.PositionShort, 100, 70, 160), 1e-9)
	assert.InDelta(t, 100.0, TravelPercent(models.PositionShort, 100, 40, 160), 1e-9)
}

func TestTravelPercentInvalidInputs(t *testing.T) {
	assert.Equal(t, 0.0, TravelPercent(models.PositionLong, 0, 100, 50))
	assert.Equal(t, 0.0, TravelPercent(models.PositionLong, 100, -1, 50))
	assert.Equal(t, 0.0, TravelPercent(models.PositionLong, 100, 100, 0))
	assert.Equal(t, 0.0, TravelPercent(models.PositionUnknown, 100, 110, 50))
}

func TestLeverage(t *testing.T) {
	assert.Equal(t, 5.0, Leverage(1000, 200))
	assert.Equal(t, 3.33, Leverage(1000, 300))
	assert.Equal(t, 0.0, Leverage(0, 200))
	assert.Equal(t, 0.0, Leverage(1000, 0))
}

func TestValueZeroEntryReturnsCollateral(t *testing.T) {
	assert.Equal(t, 500.0, Value(models.PositionLong, 0, 120, 1000, 500))
}

func TestValueWithPnl(t *testing.T) {
	// LONG: 10 tokens at entry 100, price 110 → +100 pnl.
	assert.Equal(t, 600.0, Value(models.PositionLong, 100, 110, 1000, 500))
	// SHORT gains when price falls.
	assert.Equal(t, 600.0, Value(models.PositionShort, 100, 90, 1000, 500))
}

func TestRiskIndexBounds(t *testing.T) {
	e := NewEngine()

	cases := []struct {
		name                       string
		ptype                      models.PositionType
		entry, current, liq        float64
		leverage, collateral, size float64
	}{
		{"long near liquidation", models.PositionLong, 100, 52, 50, 10, 100, 1000},
		{"long at entry", models.PositionLong, 100, 100, 50, 5, 200, 1000},
		{"short deep leverage", models.PositionShort, 100, 155, 160, 50, 20, 1000},
		{"long far from liq", models.PositionLong, 100, 300, 50, 2, 500, 1000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			risk := e.RiskIndex(tc.ptype, tc.entry, tc.current, tc.liq, tc.leverage, tc.collateral, tc.size)
			require.NotNil(t, risk)
			assert.GreaterOrEqual(t, *risk, 5.0)
			assert.LessOrEqual(t, *risk, 75.0)
		})
	}
}

func TestRiskIndexUncomputable(t *testing.T) {
	e := NewEngine()
	assert.Nil(t, e.RiskIndex(models.PositionLong, 0, 100, 50, 5, 100, 1000))
	assert.Nil(t, e.RiskIndex(models.PositionLong, 100, 100, 0, 5, 100, 1000))
	assert.Nil(t, e.RiskIndex(models.PositionLong, 100, 100, 50, 5, 0, 1000))
	assert.Nil(t, e.RiskIndex(models.PositionLong, 100, 100, 50, 5, 100, 0))
	// Degenerate entry == liquidation.
	assert.Nil(t, e.RiskIndex(models.PositionLong, 100, 100, 100, 5, 100, 1000))
}

func TestTotalsActiveOnly(t *testing.T) {
	active := &models.Position{
		Status: models.PositionActive, Size: 1000, Value: 600,
		Collateral: 500, Leverage: 2, TravelPercent: 10, HeatIndex: 20,
	}
	closed := &models.Position{
		Status: models.PositionClosed, Size: 9999, Value: 9999,
		Collateral: 9999, Leverage: 99, TravelPercent: 99, HeatIndex: 99,
	}

	totals := Totals([]*models.Position{active, closed})
	assert.Equal(t, 1000.0, totals.TotalSize)
	assert.Equal(t, 600.0, totals.TotalValue)
	assert.Equal(t, 500.0, totals.TotalCollateral)
	assert.Equal(t, 2.0, totals.AvgLeverage)
	assert.Equal(t, 10.0, totals.AvgTravelPercent)
	assert.Equal(t, 20.0, totals.AvgHeatIndex)
}

func TestTotalsSizeWeightedAverages(t *testing.T) {
	a := &models.Position{Status: models.PositionActive, Size: 100, Leverage: 2, TravelPercent: -10, HeatIndex: 10}
	b := &models.Position{Status: models.PositionActive, Size: 300, Leverage: 6, TravelPercent: 30, HeatIndex: 0}

	totals := Totals([]*models.Position{a, b})

	// (2*100 + 6*300) / 400 = 5.0
	assert.InDelta(t, 5.0, totals.AvgLeverage, 1e-9)
	// (-10*100 + 30*300) / 400 = 20
	assert.InDelta(t, 20.0, totals.AvgTravelPercent, 1e-9)
	// Heat is a simple mean over nonzero entries.
	assert.InDelta(t, 10.0, totals.AvgHeatIndex, 1e-9)
}

func TestEnrichAtPriceDoesNotMutate(t *testing.T) {
	e := NewEngine()
	p := &models.Position{
		PositionType: models.PositionLong, EntryPrice: 100, CurrentPrice: 100,
		LiquidationPrice: 50, Collateral: 500, Size: 1000,
		Status: models.PositionActive,
	}

	at := e.EnrichAtPrice(p, 125, time.Now())
	assert.Equal(t, 100.0, p.CurrentPrice)
	assert.Equal(t, 125.0, at.CurrentPrice)
	assert.InDelta(t, 50.0, at.TravelPercent, 1e-9)
}

func TestValueToCollateralRatio(t *testing.T) {
	assert.Equal(t, 1.2, ValueToCollateralRatio(models.Totals{TotalValue: 600, TotalCollateral: 500}))
	assert.Equal(t, 0.0, ValueToCollateralRatio(models.Totals{TotalValue: 600}))
}
