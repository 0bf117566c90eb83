package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"perpmonitor/internal/logger"

	"go.uber.org/zap"
)

// GetConfigValue reads one raw value from global_config. Returns
// ErrNotFound for a missing key.
func (d *DB) GetConfigValue(ctx context.Context, key string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var value string
	err := d.conn.QueryRowContext(ctx,
		`SELECT value FROM global_config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		if d.handleError("GetConfigValue", err) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// SetConfigValue upserts one raw value in global_config.
func (d *DB) SetConfigValue(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO global_config (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		logger.Log.Error("Failed to set config value",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return err
}

// GetConfigJSON unmarshals a stored JSON blob into dest. Missing keys
// return ErrNotFound and leave dest untouched.
func (d *DB) GetConfigJSON(ctx context.Context, key string, dest any) error {
	raw, err := d.GetConfigValue(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		logger.Log.Warn("Malformed config blob",
			zap.String("key", key),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// SetConfigJSON marshals v and stores it under key.
func (d *DB) SetConfigJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return d.SetConfigValue(ctx, key, string(raw))
}
