package database

import (
	"context"
	"testing"
	"time"

	"perpmonitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePosition(id string) *models.Position {
	return &models.Position{
		ID:               id,
		AssetType:        models.AssetBTC,
		PositionType:     models.PositionLong,
		EntryPrice:       100,
		LiquidationPrice: 50,
		CurrentPrice:     110,
		Collateral:       500,
		Size:             1000,
		WalletName:       "main",
		Status:           models.PositionActive,
		LastUpdated:      time.Now().UTC(),
	}
}

func TestPositionRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	heat := 33.5
	p := samplePosition("p1")
	p.CurrentHeatIndex = &heat
	p.PnlAfterFeesUSD = 42
	require.NoError(t, db.CreatePosition(ctx, p))

	got, err := db.GetPositionByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PositionLong, got.PositionType)
	assert.Equal(t, 100.0, got.EntryPrice)
	assert.Equal(t, 42.0, got.PnlAfterFeesUSD)
	require.NotNil(t, got.CurrentHeatIndex)
	assert.Equal(t, 33.5, *got.CurrentHeatIndex)
	assert.Nil(t, got.HedgeBuddyID)
}

func TestPositionNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetPositionByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPositionExists(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	exists, err := db.PositionExists(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, db.CreatePosition(ctx, samplePosition("p1")))
	exists, err = db.PositionExists(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGetActivePositionsFiltersClosed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreatePosition(ctx, samplePosition("open")))
	closed := samplePosition("closed")
	closed.Status = models.PositionClosed
	require.NoError(t, db.CreatePosition(ctx, closed))

	active, err := db.GetActivePositions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "open", active[0].ID)

	all, err := db.GetAllPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdatePositionMetrics(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p := samplePosition("p1")
	require.NoError(t, db.CreatePosition(ctx, p))

	heat := 61.0
	p.CurrentPrice = 120
	p.Leverage = 2
	p.Value = 700
	p.TravelPercent = 40
	p.LiquidationDistance = 70
	p.HeatIndex = 61
	p.CurrentHeatIndex = &heat
	p.PnlAfterFeesUSD = 200
	p.LastUpdated = time.Now().UTC()
	require.NoError(t, db.UpdatePositionMetrics(ctx, p))

	got, err := db.GetPositionByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 120.0, got.CurrentPrice)
	assert.Equal(t, 700.0, got.Value)
	assert.Equal(t, 40.0, got.TravelPercent)
	assert.Equal(t, 61.0, got.HeatIndex)
	assert.Equal(t, 200.0, got.PnlAfterFeesUSD)
}

func TestSetHedgeBuddy(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreatePosition(ctx, samplePosition("p1")))

	hedge := "hedge-1"
	require.NoError(t, db.SetHedgeBuddy(ctx, "p1", &hedge))
	got, err := db.GetPositionByID(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got.HedgeBuddyID)
	assert.Equal(t, "hedge-1", *got.HedgeBuddyID)

	require.NoError(t, db.SetHedgeBuddy(ctx, "p1", nil))
	got, err = db.GetPositionByID(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got.HedgeBuddyID)
}

func TestDeletePosition(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreatePosition(ctx, samplePosition("p1")))
	require.NoError(t, db.DeletePosition(ctx, "p1"))
	assert.ErrorIs(t, db.DeletePosition(ctx, "p1"), ErrNotFound)
}

func TestClearPositions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreatePosition(ctx, samplePosition("p1")))
	require.NoError(t, db.CreatePosition(ctx, samplePosition("p2")))
	require.NoError(t, db.ClearPositions(ctx))

	all, err := db.GetAllPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
