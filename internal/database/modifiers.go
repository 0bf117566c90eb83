package database

import (
	"context"
	"time"

	"perpmonitor/internal/logger"

	"go.uber.org/zap"
)

// Modifier groups used by the risk engine.
const (
	ModifierGroupHeat     = "heat_index"
	ModifierGroupHedging  = "hedging"
	ModifierKeyDistance   = "distance_weight"
	ModifierKeyLeverage   = "leverage_weight"
	ModifierKeyCollateral = "collateral_weight"
)

// GetModifiers returns every modifier in a group as a key/value map.
// Missing groups return an empty map, so callers fall back to defaults.
func (d *DB) GetModifiers(ctx context.Context, group string) (map[string]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.conn.QueryContext(ctx,
		`SELECT key, value FROM modifiers WHERE group_name = ?`, group)
	if err != nil {
		if d.handleError("GetModifiers", err) {
			return map[string]float64{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var key string
		var value float64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetModifier upserts one weight in a group.
func (d *DB) SetModifier(ctx context.Context, group, key string, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO modifiers (key, group_name, value, last_modified)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET group_name = excluded.group_name,
		     value = excluded.value, last_modified = excluded.last_modified`,
		key, group, value, time.Now().UTC(),
	)
	if err != nil {
		logger.Log.Error("Failed to set modifier",
			zap.String("group", group),
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return err
}
