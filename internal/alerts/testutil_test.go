package alerts

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"perpmonitor/internal/database"
	"perpmonitor/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestPosition(t *testing.T, db *database.DB, mutate func(*models.Position)) *models.Position {
	t.Helper()
	p := &models.Position{
		ID:               uuid.New().String(),
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
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, db.CreatePosition(context.Background(), p))
	return p
}

func enableAllRanges(t *testing.T, db *database.DB) {
	t.Helper()
	var cfg RangesConfig
	cfg.AlertRanges.PositionsAlerts = map[string]MetricRange{
		"heat_index":     {Enabled: true},
		"travel_percent": {Enabled: true},
		"profit":         {Enabled: true},
	}
	cfg.AlertRanges.PortfolioAlerts = map[string]MetricRange{
		"total_value":               {Enabled: true},
		"total_size":                {Enabled: true},
		"avg_leverage":              {Enabled: true},
		"avg_travel_percent":        {Enabled: true},
		"value_to_collateral_ratio": {Enabled: true},
		"total_heat":                {Enabled: true},
	}
	require.NoError(t, db.SetConfigJSON(context.Background(), ConfigKeyThresholds, cfg))
}

func floatPtr(v float64) *float64 { return &v }
