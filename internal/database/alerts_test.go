package database

import (
	"context"
	"testing"
	"time"

	"perpmonitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAlert(id string, ref *string) *models.Alert {
	return &models.Alert{
		ID:                  id,
		CreatedAt:           time.Now().UTC(),
		AlertType:           models.AlertTypeProfit,
		AlertClass:          models.ClassPosition,
		AssetType:           string(models.AssetBTC),
		TriggerValue:        50,
		Condition:           models.ConditionAbove,
		NotificationType:    models.NotifySMS,
		Level:               models.LevelNormal,
		Status:              models.StatusActive,
		Frequency:           1,
		PositionType:        "LONG",
		PositionReferenceID: ref,
	}
}

func TestAlertRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ref := "pos-1"
	a := sampleAlert("a1", &ref)
	v := 123.45
	a.EvaluatedValue = &v
	require.NoError(t, db.CreateAlert(ctx, a))

	got, err := db.GetAlertByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AlertTypeProfit, got.AlertType)
	assert.Equal(t, models.ClassPosition, got.AlertClass)
	require.NotNil(t, got.PositionReferenceID)
	assert.Equal(t, "pos-1", *got.PositionReferenceID)
	require.NotNil(t, got.EvaluatedValue)
	assert.Equal(t, 123.45, *got.EvaluatedValue)
	assert.Nil(t, got.LastTriggered)
}

func TestAlertExistsNullSafe(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Market alert with no position reference.
	market := sampleAlert("m1", nil)
	market.AlertType = models.AlertTypePriceThreshold
	market.AlertClass = models.ClassMarket
	require.NoError(t, db.CreateAlert(ctx, market))

	exists, err := db.AlertExists(ctx, models.AlertTypePriceThreshold, models.ClassMarket, nil)
	require.NoError(t, err)
	assert.True(t, exists)

	// The NULL row must not satisfy a lookup for a concrete reference.
	ref := "pos-1"
	exists, err = db.AlertExists(ctx, models.AlertTypePriceThreshold, models.ClassMarket, &ref)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, db.CreateAlert(ctx, sampleAlert("a1", &ref)))
	exists, err = db.AlertExists(ctx, models.AlertTypeProfit, models.ClassPosition, &ref)
	require.NoError(t, err)
	assert.True(t, exists)

	// And the concrete row must not satisfy the NULL lookup.
	exists, err = db.AlertExists(ctx, models.AlertTypeProfit, models.ClassPosition, nil)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetActiveAlertsFiltersStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateAlert(ctx, sampleAlert("active", nil)))
	silenced := sampleAlert("silenced", nil)
	silenced.Status = models.StatusSilenced
	require.NoError(t, db.CreateAlert(ctx, silenced))

	active, err := db.GetActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "active", active[0].ID)
}

func TestUpdateAlertFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateAlert(ctx, sampleAlert("a1", nil)))

	require.NoError(t, db.UpdateAlertLevel(ctx, "a1", models.LevelHigh))
	v := 99.0
	require.NoError(t, db.UpdateAlertEvaluatedValue(ctx, "a1", &v))
	require.NoError(t, db.UpdateAlertStatus(ctx, "a1", models.StatusSilenced))

	got, err := db.GetAlertByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.LevelHigh, got.Level)
	require.NotNil(t, got.EvaluatedValue)
	assert.Equal(t, 99.0, *got.EvaluatedValue)
	assert.Equal(t, models.StatusSilenced, got.Status)
}

func TestTouchAlertTriggeredIncrementsCounter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateAlert(ctx, sampleAlert("a1", nil)))

	now := time.Now().UTC()
	require.NoError(t, db.TouchAlertTriggered(ctx, "a1", now))
	require.NoError(t, db.TouchAlertTriggered(ctx, "a1", now.Add(time.Minute)))

	got, err := db.GetAlertByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Counter)
	require.NotNil(t, got.LastTriggered)
}

func TestDeleteAlertsByPositionRefs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	keepRef := "pos-keep"
	goneRef := "pos-gone"
	require.NoError(t, db.CreateAlert(ctx, sampleAlert("keep", &keepRef)))
	require.NoError(t, db.CreateAlert(ctx, sampleAlert("gone", &goneRef)))
	require.NoError(t, db.CreateAlert(ctx, sampleAlert("market", nil))) // NULL ref survives

	removed, err := db.DeleteAlertsByPositionRefs(ctx, []string{keepRef})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	all, err := db.GetAllAlerts(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, a := range all {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{"keep", "market"}, ids)
}

func TestDeleteAlert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateAlert(ctx, sampleAlert("a1", nil)))
	require.NoError(t, db.DeleteAlert(ctx, "a1"))
	assert.ErrorIs(t, db.DeleteAlert(ctx, "a1"), ErrNotFound)
}
