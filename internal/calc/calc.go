// Package calc derives risk metrics for leveraged perpetual positions.
// All functions are pure; the Engine only carries the composite risk
// weights loaded from the modifiers table.
package calc

import (
	"context"
	"math"
	"time"

	"perpmonitor/internal/database"
	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"go.uber.org/zap"
)

// Default composite risk weights, used when the modifiers table has no
// override for a key.
const (
	DefaultDistanceWeight   = 0.6
	DefaultLeverageWeight   = 0.3
	DefaultCollateralWeight = 0.1
)

// Composite risk index bounds. Any computable position scores at least
// the floor; the cap keeps a single position from saturating dashboards.
const (
	riskFloor = 5.0
	riskCap   = 75.0
)

// Engine evaluates position metrics with a fixed set of risk weights.
type Engine struct {
	DistanceWeight   float64
	LeverageWeight   float64
	CollateralWeight float64
}

// NewEngine returns an engine with the default weights.
func NewEngine() *Engine {
	return &Engine{
		DistanceWeight:   DefaultDistanceWeight,
		LeverageWeight:   DefaultLeverageWeight,
		CollateralWeight: DefaultCollateralWeight,
	}
}

// LoadEngine builds an engine from the heat_index modifier group,
// falling back to defaults for missing keys.
func LoadEngine(ctx context.Context, db *database.DB) *Engine {
	e := NewEngine()
	mods, err := db.GetModifiers(ctx, database.ModifierGroupHeat)
	if err != nil {
		logger.Log.Warn("Failed to load risk modifiers, using defaults", zap.Error(err))
		return e
	}
	if v, ok := mods[database.ModifierKeyDistance]; ok {
		e.DistanceWeight = v
	}
	if v, ok := mods[database.ModifierKeyLeverage]; ok {
		e.LeverageWeight = v
	}
	if v, ok := mods[database.ModifierKeyCollateral]; ok {
		e.CollateralWeight = v
	}
	return e
}

// TravelPercent measures progress between liquidation (-100) and the
// mirrored profit target (+100). Zero when any price input is unusable.
func TravelPercent(ptype models.PositionType, entry, current, liquidation float64) float64 {
	if entry <= 0 || current <= 0 || liquidation <= 0 {
		return 0
	}

	switch ptype {
	case models.PositionLong:
		if entry == liquidation {
			return 0
		}
		if current <= entry {
			return (current - entry) / (entry - liquidation) * 100
		}
		profitTarget := entry + (entry - liquidation)
		if profitTarget == entry {
			return 0
		}
		return (current - entry) / (profitTarget - entry) * 100
	case models.PositionShort:
		if liquidation == entry {
			return 0
		}
		if current >= entry {
			return -((current - entry) / (liquidation - entry)) * 100
		}
		profitTarget := entry - (liquidation - entry)
		if entry == profitTarget {
			return 0
		}
		return (entry - current) / (entry - profitTarget) * 100
	default:
		return 0
	}
}

// Leverage is notional size over collateral, rounded to cents.
func Leverage(size, collateral float64) float64 {
	if size <= 0 || collateral <= 0 {
		return 0
	}
	return round2(size / collateral)
}

// LiquidationDistance is the absolute price gap to liquidation.
func LiquidationDistance(liquidation, current float64) float64 {
	return round2(math.Abs(liquidation - current))
}

// PnL is the unrealized profit in quote currency. Token count is derived
// from the entry notional, so a zero entry price yields zero PnL.
func PnL(ptype models.PositionType, entry, current, size float64) float64 {
	if entry <= 0 {
		return 0
	}
	tokens := size / entry
	switch ptype {
	case models.PositionLong:
		return (current - entry) * tokens
	case models.PositionShort:
		return (entry - current) * tokens
	default:
		return 0
	}
}

// Value is collateral plus unrealized PnL, rounded to cents.
func Value(ptype models.PositionType, entry, current, size, collateral float64) float64 {
	if entry <= 0 {
		return round2(collateral)
	}
	return round2(collateral + PnL(ptype, entry, current, size))
}

// RiskIndex computes the composite risk index in [5, 75], or nil when the
// position's inputs cannot support the computation.
func (e *Engine) RiskIndex(ptype models.PositionType, entry, current, liquidation, leverage, collateral, size float64) *float64 {
	if entry <= 0 || liquidation <= 0 || collateral <= 0 || size <= 0 {
		return nil
	}
	if math.Abs(entry-liquidation) < 1e-6 {
		return nil
	}

	var ndl float64
	switch ptype {
	case models.PositionLong:
		ndl = (current - liquidation) / (entry - liquidation)
	case models.PositionShort:
		ndl = (liquidation - current) / (liquidation - entry)
	default:
		return nil
	}
	ndl = clamp(ndl, 0, 1)

	distanceFactor := 1 - ndl
	normalizedLeverage := leverage / 100
	collateralFactor := 1 - math.Min(collateral/size, 1)

	risk := math.Pow(distanceFactor, e.DistanceWeight) *
		math.Pow(normalizedLeverage, e.LeverageWeight) *
		math.Pow(collateralFactor, e.CollateralWeight) * 100

	risk = clamp(risk, riskFloor, riskCap)
	risk = round2(risk)
	return &risk
}

// Enrich recomputes every derived field on a position in place and stamps
// last_updated.
func (e *Engine) Enrich(p *models.Position, now time.Time) {
	p.Leverage = Leverage(p.Size, p.Collateral)
	p.Value = Value(p.PositionType, p.EntryPrice, p.CurrentPrice, p.Size, p.Collateral)
	p.TravelPercent = TravelPercent(p.PositionType, p.EntryPrice, p.CurrentPrice, p.LiquidationPrice)
	p.LiquidationDistance = LiquidationDistance(p.LiquidationPrice, p.CurrentPrice)

	if risk := e.RiskIndex(p.PositionType, p.EntryPrice, p.CurrentPrice, p.LiquidationPrice, p.Leverage, p.Collateral, p.Size); risk != nil {
		p.HeatIndex = *risk
		p.CurrentHeatIndex = risk
	} else {
		p.HeatIndex = 0
		p.CurrentHeatIndex = nil
	}
	p.LastUpdated = now
}

// EnrichAtPrice evaluates the derived metrics a position would have at a
// hypothetical market price, without mutating the input.
func (e *Engine) EnrichAtPrice(p *models.Position, price float64, now time.Time) *models.Position {
	copied := *p
	copied.CurrentPrice = price
	e.Enrich(&copied, now)
	return &copied
}

// Totals aggregates active positions: sums of size, value and collateral,
// size-weighted average leverage and travel percent, and a simple mean of
// the nonzero heat indexes.
func Totals(positions []*models.Position) models.Totals {
	var t models.Totals
	var weightedLeverage, weightedTravel float64
	var heatSum float64
	var heatCount int

	for _, p := range positions {
		if p.Status != models.PositionActive {
			continue
		}
		t.TotalSize += p.Size
		t.TotalValue += p.Value
		t.TotalCollateral += p.Collateral
		weightedLeverage += p.Leverage * p.Size
		weightedTravel += p.TravelPercent * p.Size
		if p.HeatIndex != 0 {
			heatSum += p.HeatIndex
			heatCount++
		}
	}

	if t.TotalSize > 0 {
		t.AvgLeverage = weightedLeverage / t.TotalSize
		t.AvgTravelPercent = weightedTravel / t.TotalSize
	}
	if heatCount > 0 {
		t.AvgHeatIndex = heatSum / float64(heatCount)
	}
	return t
}

// ValueToCollateralRatio is total value over total collateral, zero when
// there is no collateral.
func ValueToCollateralRatio(t models.Totals) float64 {
	if t.TotalCollateral <= 0 {
		return 0
	}
	return t.TotalValue / t.TotalCollateral
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
