package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"perpmonitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Every table is queryable immediately after open.
	_, err := db.GetAllPositions(ctx)
	assert.NoError(t, err)
	_, err = db.GetAllAlerts(ctx)
	assert.NoError(t, err)
	_, err = db.GetAllThresholds(ctx)
	assert.NoError(t, err)
	_, err = db.GetLatestPrices(ctx)
	assert.NoError(t, err)
	_, err = db.GetAllWallets(ctx)
	assert.NoError(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.db")

	db, err := Open(path)
	require.NoError(t, err)
	p := &models.Position{
		ID: "p1", AssetType: models.AssetBTC, PositionType: models.PositionLong,
		Status: models.PositionActive, LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, db.CreatePosition(context.Background(), p))
	require.NoError(t, db.Close())

	// Reopening re-runs schema init without touching existing rows.
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.GetPositionByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, models.AssetBTC, got.AssetType)
}

func TestOpenRecoversFromCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monitor.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite file at all, just garbage bytes"), 0o644))

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	// Fresh schema, no rows survive.
	positions, err := db.GetAllPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)

	// And the rebuilt file is fully writable.
	p := &models.Position{
		ID: "after-rebuild", AssetType: models.AssetSOL, PositionType: models.PositionShort,
		Status: models.PositionActive, LastUpdated: time.Now().UTC(),
	}
	assert.NoError(t, db.CreatePosition(context.Background(), p))
}

func TestMonitorStatusNeverRun(t *testing.T) {
	db := newTestDB(t)

	status, err := db.GetMonitorStatus(context.Background(), "cycle_monitor")
	require.NoError(t, err)
	assert.Equal(t, 9999, status.AgeSeconds)
	assert.Nil(t, status.LastTimestamp)
}

func TestMonitorStatusAfterRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertLedgerEntry(ctx, "cycle_monitor", models.LedgerSuccess, `{"duration_ms":12}`))

	status, err := db.GetMonitorStatus(ctx, "cycle_monitor")
	require.NoError(t, err)
	require.NotNil(t, status.LastTimestamp)
	assert.Less(t, status.AgeSeconds, 60)
	assert.Equal(t, models.LedgerSuccess, status.Status)
}

func TestLedgerLastEntryWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertLedgerEntry(ctx, "price_monitor", models.LedgerError, ""))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, db.InsertLedgerEntry(ctx, "price_monitor", models.LedgerSuccess, ""))

	entry, err := db.GetLastLedgerEntry(ctx, "price_monitor")
	require.NoError(t, err)
	assert.Equal(t, models.LedgerSuccess, entry.Status)

	_, err = db.GetLastLedgerEntry(ctx, "unknown_monitor")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfigValueUpsert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.GetConfigValue(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.SetConfigValue(ctx, "k", "v1"))
	v, err := db.GetConfigValue(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	require.NoError(t, db.SetConfigValue(ctx, "k", "v2"))
	v, err = db.GetConfigValue(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}

func TestConfigJSONRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	type blob struct {
		Name  string  `json:"name"`
		Limit float64 `json:"limit"`
	}
	require.NoError(t, db.SetConfigJSON(ctx, "blob", blob{Name: "x", Limit: 1.5}))

	var got blob
	require.NoError(t, db.GetConfigJSON(ctx, "blob", &got))
	assert.Equal(t, blob{Name: "x", Limit: 1.5}, got)
}

func TestModifiers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	m, err := db.GetModifiers(ctx, ModifierGroupHeat)
	require.NoError(t, err)
	assert.Empty(t, m)

	require.NoError(t, db.SetModifier(ctx, ModifierGroupHeat, ModifierKeyDistance, 0.5))
	require.NoError(t, db.SetModifier(ctx, ModifierGroupHeat, ModifierKeyLeverage, 0.4))
	require.NoError(t, db.SetModifier(ctx, ModifierGroupHeat, ModifierKeyDistance, 0.55)) // overwrite

	m, err = db.GetModifiers(ctx, ModifierGroupHeat)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{
		ModifierKeyDistance: 0.55,
		ModifierKeyLeverage: 0.4,
	}, m)
}

func TestPortfolioSnapshots(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	older := time.Now().UTC().Add(-time.Hour)
	_, err := db.RecordSnapshot(ctx, models.Totals{TotalValue: 100}, older)
	require.NoError(t, err)
	_, err = db.RecordSnapshot(ctx, models.Totals{TotalValue: 200}, time.Now().UTC())
	require.NoError(t, err)

	snaps, err := db.GetSnapshots(ctx, 1)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 200.0, snaps[0].TotalValue)

	all, err := db.GetSnapshots(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestWalletCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	w := &models.Wallet{Name: "main", PublicAddress: "addr1", PrivateKey: "enc:abc", Balance: 1.25}
	require.NoError(t, db.UpsertWallet(ctx, w))

	got, err := db.GetWallet(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "addr1", got.PublicAddress)

	w.Balance = 2.5
	require.NoError(t, db.UpsertWallet(ctx, w))
	got, err = db.GetWallet(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 2.5, got.Balance)

	all, err := db.GetAllWallets(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, db.DeleteWallet(ctx, "main"))
	_, err = db.GetWallet(ctx, "main")
	assert.ErrorIs(t, err, ErrNotFound)
}
