package alerts

import (
	"context"
	"testing"
	"time"

	"perpmonitor/internal/calc"
	"perpmonitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrichProfitAlert(t *testing.T) {
	db := newTestDB(t)
	en := NewEnricher(db, calc.NewEngine())
	ctx := context.Background()

	p := newTestPosition(t, db, func(p *models.Position) {
		p.PnlAfterFeesUSD = 150
	})

	a := &models.Alert{
		ID:                  "p1",
		AlertType:           models.AlertTypeProfit,
		AlertClass:          models.ClassPosition,
		PositionReferenceID: &p.ID,
	}
	en.Enrich(ctx, a)

	require.NotNil(t, a.EvaluatedValue)
	assert.Equal(t, 150.0, *a.EvaluatedValue)
}

func TestEnrichHeatIndexDefaultsWhenMissing(t *testing.T) {
	db := newTestDB(t)
	en := NewEnricher(db, calc.NewEngine())
	ctx := context.Background()

	p := newTestPosition(t, db, func(p *models.Position) {
		p.CurrentHeatIndex = nil
	})

	a := &models.Alert{
		ID:                  "h1",
		AlertType:           models.AlertTypeHeatIndex,
		AlertClass:          models.ClassPosition,
		PositionReferenceID: &p.ID,
	}
	en.Enrich(ctx, a)

	require.NotNil(t, a.EvaluatedValue)
	assert.Equal(t, 5.0, *a.EvaluatedValue)
	assert.Contains(t, a.Notes, "heat index missing")
}

func TestEnrichHeatIndexUsesStoredValue(t *testing.T) {
	db := newTestDB(t)
	en := NewEnricher(db, calc.NewEngine())
	ctx := context.Background()

	heat := 42.5
	p := newTestPosition(t, db, func(p *models.Position) {
		p.CurrentHeatIndex = &heat
	})

	a := &models.Alert{
		ID:                  "h2",
		AlertType:           models.AlertTypeHeatIndex,
		AlertClass:          models.ClassPosition,
		PositionReferenceID: &p.ID,
	}
	en.Enrich(ctx, a)

	require.NotNil(t, a.EvaluatedValue)
	assert.Equal(t, 42.5, *a.EvaluatedValue)
	assert.Empty(t, a.Notes)
}

func TestEnrichTravelPercentFromLatestPrice(t *testing.T) {
	db := newTestDB(t)
	en := NewEnricher(db, calc.NewEngine())
	ctx := context.Background()

	p := newTestPosition(t, db, nil) // LONG entry 100, liq 50
	require.NoError(t, db.InsertPrice(ctx, models.AssetBTC, 75, "coingecko", time.Now().UTC()))

	a := &models.Alert{
		ID:                  "t1",
		AlertType:           models.AlertTypeTravelPercentLiquid,
		AlertClass:          models.ClassPosition,
		PositionReferenceID: &p.ID,
	}
	en.Enrich(ctx, a)

	require.NotNil(t, a.EvaluatedValue)
	assert.InDelta(t, -50.0, *a.EvaluatedValue, 1e-9)
}

func TestEnrichTravelPercentNoPriceDefaultsToZero(t *testing.T) {
	db := newTestDB(t)
	en := NewEnricher(db, calc.NewEngine())
	ctx := context.Background()

	p := newTestPosition(t, db, nil)
	a := &models.Alert{
		ID:                  "t2",
		AlertType:           models.AlertTypeTravelPercentLiquid,
		AlertClass:          models.ClassPosition,
		PositionReferenceID: &p.ID,
	}
	en.Enrich(ctx, a)

	require.NotNil(t, a.EvaluatedValue)
	assert.Equal(t, 0.0, *a.EvaluatedValue)
	assert.Contains(t, a.Notes, "no market price")
}

func TestEnrichMarketAlert(t *testing.T) {
	db := newTestDB(t)
	en := NewEnricher(db, calc.NewEngine())
	ctx := context.Background()

	require.NoError(t, db.InsertPrice(ctx, models.AssetBTC, 68000, "coingecko", time.Now().UTC()))

	a := &models.Alert{
		ID:         "m1",
		AlertType:  models.AlertTypePriceThreshold,
		AlertClass: models.ClassMarket,
		AssetType:  string(models.AssetBTC),
	}
	en.Enrich(ctx, a)

	require.NotNil(t, a.EvaluatedValue)
	assert.Equal(t, 68000.0, *a.EvaluatedValue)
}

func TestEnrichSystemAlertEvaluatesToOne(t *testing.T) {
	db := newTestDB(t)
	en := NewEnricher(db, calc.NewEngine())

	a := &models.Alert{
		ID:         "s1",
		AlertType:  models.AlertTypeDeathNail,
		AlertClass: models.ClassSystem,
	}
	en.Enrich(context.Background(), a)

	require.NotNil(t, a.EvaluatedValue)
	assert.Equal(t, 1.0, *a.EvaluatedValue)
}

func TestEnrichAllPreservesOrder(t *testing.T) {
	db := newTestDB(t)
	en := NewEnricher(db, calc.NewEngine())
	ctx := context.Background()

	var batch []*models.Alert
	for i := 0; i < 20; i++ {
		cls := models.ClassSystem
		typ := models.AlertTypeDeathNail
		if i%2 == 0 {
			cls = models.ClassPortfolio
			typ = models.AlertTypeTotalValue
		}
		batch = append(batch, &models.Alert{
			ID:         string(rune('a' + i)),
			AlertType:  typ,
			AlertClass: cls,
		})
	}

	results := en.EnrichAll(ctx, batch)
	require.Len(t, results, len(batch))
	for i := range batch {
		assert.Same(t, batch[i], results[i], "result %d out of order", i)
		require.NotNil(t, results[i].EvaluatedValue)
		if i%2 == 0 {
			assert.Equal(t, 0.0, *results[i].EvaluatedValue)
		} else {
			assert.Equal(t, 1.0, *results[i].EvaluatedValue)
		}
	}
}
