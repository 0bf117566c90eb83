package alerts

import (
	"context"
	"testing"
	"time"

	"perpmonitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertThreshold(t *testing.T, svc *ThresholdService, row models.AlertThreshold) *models.AlertThreshold {
	t.Helper()
	require.NoError(t, svc.Insert(context.Background(), &row))
	return &row
}

func TestEvaluateProfitLadder(t *testing.T) {
	db := newTestDB(t)
	svc := NewThresholdService(db, "")
	insertThreshold(t, svc, models.AlertThreshold{
		AlertType:  models.AlertTypeProfit,
		AlertClass: models.ClassPosition,
		MetricKey:  "profit",
		Condition:  models.ConditionAbove,
		Low:        50, Medium: 100, High: 500,
		Enabled: true,
	})

	ev := NewEvaluator(db)
	a := &models.Alert{
		ID:             "a1",
		AlertType:      models.AlertTypeProfit,
		AlertClass:     models.ClassPosition,
		Condition:      models.ConditionAbove,
		EvaluatedValue: floatPtr(150),
	}

	assert.Equal(t, models.LevelMedium, ev.Evaluate(context.Background(), a))
	assert.Equal(t, models.LevelMedium, a.Level)
}

func TestLadderLevelAboveBoundaries(t *testing.T) {
	th := &models.AlertThreshold{
		Condition: models.ConditionAbove,
		Low:       50, Medium: 100, High: 500,
	}

	assert.Equal(t, models.LevelNormal, LadderLevel(49.99, th))
	assert.Equal(t, models.LevelLow, LadderLevel(50, th))
	assert.Equal(t, models.LevelLow, LadderLevel(99.99, th))
	assert.Equal(t, models.LevelMedium, LadderLevel(100, th))
	assert.Equal(t, models.LevelMedium, LadderLevel(499.99, th))
	assert.Equal(t, models.LevelHigh, LadderLevel(500, th))
	assert.Equal(t, models.LevelHigh, LadderLevel(1e9, th))
}

func TestLadderLevelBelowAntiMonotone(t *testing.T) {
	th := &models.AlertThreshold{
		Condition: models.ConditionBelow,
		Low:       -10, Medium: -25, High: -50,
	}

	assert.Equal(t, models.LevelNormal, LadderLevel(0, th))
	assert.Equal(t, models.LevelNormal, LadderLevel(-9.99, th))
	assert.Equal(t, models.LevelLow, LadderLevel(-10, th))
	assert.Equal(t, models.LevelLow, LadderLevel(-16.67, th))
	assert.Equal(t, models.LevelMedium, LadderLevel(-25, th))
	assert.Equal(t, models.LevelMedium, LadderLevel(-49.99, th))
	assert.Equal(t, models.LevelHigh, LadderLevel(-50, th))
	assert.Equal(t, models.LevelHigh, LadderLevel(-101, th))
}

// Short at entry 100 with liquidation 160 sits at -16.67% travel when the
// market trades at 110, which is Low against the default travel ladder.
func TestShortTravelEvaluatesLow(t *testing.T) {
	db := newTestDB(t)
	svc := NewThresholdService(db, "")
	insertThreshold(t, svc, models.AlertThreshold{
		AlertType:  models.AlertTypeTravelPercentLiquid,
		AlertClass: models.ClassPosition,
		MetricKey:  "travel_percent_liquid",
		Condition:  models.ConditionBelow,
		Low:        -10, Medium: -25, High: -50,
		Enabled: true,
	})

	ev := NewEvaluator(db)
	a := &models.Alert{
		ID:             "a-travel",
		AlertType:      models.AlertTypeTravelPercentLiquid,
		AlertClass:     models.ClassPosition,
		Condition:      models.ConditionBelow,
		EvaluatedValue: floatPtr(-16.67),
	}
	assert.Equal(t, models.LevelLow, ev.Evaluate(context.Background(), a))
}

func TestEvaluateDeathNailAlwaysHigh(t *testing.T) {
	db := newTestDB(t)
	ev := NewEvaluator(db)

	a := &models.Alert{
		ID:         "dn",
		AlertType:  models.AlertTypeDeathNail,
		AlertClass: models.ClassSystem,
	}
	assert.Equal(t, models.LevelHigh, ev.Evaluate(context.Background(), a))
}

func TestEvaluateNilValueCoercedToZero(t *testing.T) {
	db := newTestDB(t)
	ev := NewEvaluator(db)

	a := &models.Alert{
		ID:           "nv",
		AlertType:    models.AlertTypeProfit,
		AlertClass:   models.ClassPosition,
		Condition:    models.ConditionAbove,
		TriggerValue: 10,
	}
	level := ev.Evaluate(context.Background(), a)

	assert.Equal(t, models.LevelNormal, level)
	require.NotNil(t, a.EvaluatedValue)
	assert.Equal(t, 0.0, *a.EvaluatedValue)
}

func TestEvaluateFallbackWithoutThreshold(t *testing.T) {
	db := newTestDB(t)
	ev := NewEvaluator(db)

	above := &models.Alert{
		ID:        "f1",
		AlertType: models.AlertTypeProfit, AlertClass: models.ClassPosition,
		Condition: models.ConditionAbove, TriggerValue: 100,
		EvaluatedValue: floatPtr(150),
	}
	assert.Equal(t, models.LevelHigh, ev.Evaluate(context.Background(), above))

	below := &models.Alert{
		ID:        "f2",
		AlertType: models.AlertTypeProfit, AlertClass: models.ClassPosition,
		Condition: models.ConditionBelow, TriggerValue: -25,
		EvaluatedValue: floatPtr(-10),
	}
	assert.Equal(t, models.LevelNormal, ev.Evaluate(context.Background(), below))
}

func TestEvaluateAllPersistsResults(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := &models.Alert{
		ID:        "ea1",
		CreatedAt: time.Now().UTC(),
		AlertType: models.AlertTypeProfit, AlertClass: models.ClassPosition,
		Condition: models.ConditionAbove, TriggerValue: 100,
		NotificationType: models.NotifyEmail,
		Status:           models.StatusActive, Level: models.LevelNormal,
		Frequency: 1, AssetType: string(models.AssetBTC), PositionType: "N/A",
		EvaluatedValue: floatPtr(250),
	}
	require.NoError(t, db.CreateAlert(ctx, a))

	NewEvaluator(db).EvaluateAll(ctx, []*models.Alert{a})

	stored, err := db.GetAlertByID(ctx, "ea1")
	require.NoError(t, err)
	assert.Equal(t, models.LevelHigh, stored.Level)
	require.NotNil(t, stored.EvaluatedValue)
	assert.Equal(t, 250.0, *stored.EvaluatedValue)
}
