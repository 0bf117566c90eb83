package database

import (
	"context"
	"testing"
	"time"

	"perpmonitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertPriceCarriesPreviousForward(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	t0 := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, db.InsertPrice(ctx, models.AssetBTC, 64000, "coingecko", t0))

	got, err := db.GetLatestPrice(ctx, models.AssetBTC)
	require.NoError(t, err)
	assert.Equal(t, 64000.0, got.CurrentPrice)
	assert.Equal(t, 0.0, got.PreviousPrice)

	require.NoError(t, db.InsertPrice(ctx, models.AssetBTC, 65000, "coingecko", time.Now().UTC()))

	got, err = db.GetLatestPrice(ctx, models.AssetBTC)
	require.NoError(t, err)
	assert.Equal(t, 65000.0, got.CurrentPrice)
	assert.Equal(t, 64000.0, got.PreviousPrice)
	assert.Equal(t, "coingecko", got.Source)
	assert.False(t, got.PreviousUpdateTime.IsZero())
}

func TestGetLatestPriceUnknownAsset(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetLatestPrice(context.Background(), models.AssetSOL)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetLatestPricesOnePerAsset(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.InsertPrice(ctx, models.AssetBTC, 64000, "coingecko", now.Add(-time.Minute)))
	require.NoError(t, db.InsertPrice(ctx, models.AssetBTC, 65000, "coingecko", now))
	require.NoError(t, db.InsertPrice(ctx, models.AssetETH, 3200, "coingecko", now))

	prices, err := db.GetLatestPrices(ctx)
	require.NoError(t, err)
	require.Len(t, prices, 2)

	byAsset := make(map[models.AssetType]float64, len(prices))
	for _, p := range prices {
		byAsset[p.AssetType] = p.CurrentPrice
	}
	assert.Equal(t, 65000.0, byAsset[models.AssetBTC])
	assert.Equal(t, 3200.0, byAsset[models.AssetETH])
}

func TestClearPrices(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertPrice(ctx, models.AssetBTC, 64000, "coingecko", time.Now().UTC()))
	require.NoError(t, db.ClearPrices(ctx))

	prices, err := db.GetLatestPrices(ctx)
	require.NoError(t, err)
	assert.Empty(t, prices)
}
