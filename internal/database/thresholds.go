package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"go.uber.org/zap"
)

// ErrDuplicateThreshold is returned when inserting an enabled threshold
// that would shadow an existing enabled row for the same
// (alert_type, alert_class, condition) key.
var ErrDuplicateThreshold = errors.New("enabled threshold already exists for this key")

const thresholdColumns = `
	id, alert_type, alert_class, metric_key, condition, low, medium, high,
	enabled, last_modified, low_notify, medium_notify, high_notify`

// InsertThreshold adds a threshold row, enforcing one enabled row per
// (alert_type, alert_class, condition).
func (d *DB) InsertThreshold(ctx context.Context, t *models.AlertThreshold) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t.Enabled {
		var one int
		err := d.conn.QueryRowContext(ctx,
			`SELECT 1 FROM alert_thresholds
			 WHERE alert_type = ? AND alert_class = ? AND condition = ? AND enabled = 1 LIMIT 1`,
			t.AlertType, t.AlertClass, t.Condition,
		).Scan(&one)
		if err == nil {
			return fmt.Errorf("%w: %s/%s/%s", ErrDuplicateThreshold, t.AlertType, t.AlertClass, t.Condition)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			if d.handleError("InsertThreshold", err) {
				return nil
			}
			return err
		}
	}

	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO alert_thresholds (`+thresholdColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AlertType, t.AlertClass, t.MetricKey, t.Condition,
		t.Low, t.Medium, t.High, t.Enabled, t.LastModified,
		t.LowNotify, t.MediumNotify, t.HighNotify,
	)
	if err != nil {
		logger.Log.Error("Failed to insert threshold",
			zap.String("threshold_id", t.ID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// UpdateThreshold rewrites every mutable field of an existing row,
// enforcing the same one-enabled-row-per-key rule as InsertThreshold.
func (d *DB) UpdateThreshold(ctx context.Context, t *models.AlertThreshold) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t.Enabled {
		var one int
		err := d.conn.QueryRowContext(ctx,
			`SELECT 1 FROM alert_thresholds
			 WHERE alert_type = ? AND alert_class = ? AND condition = ? AND enabled = 1 AND id != ? LIMIT 1`,
			t.AlertType, t.AlertClass, t.Condition, t.ID,
		).Scan(&one)
		if err == nil {
			return fmt.Errorf("%w: %s/%s/%s", ErrDuplicateThreshold, t.AlertType, t.AlertClass, t.Condition)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			if d.handleError("UpdateThreshold", err) {
				return nil
			}
			return err
		}
	}

	result, err := d.conn.ExecContext(ctx,
		`UPDATE alert_thresholds
		 SET alert_type = ?, alert_class = ?, metric_key = ?, condition = ?,
		     low = ?, medium = ?, high = ?, enabled = ?, last_modified = ?,
		     low_notify = ?, medium_notify = ?, high_notify = ?
		 WHERE id = ?`,
		t.AlertType, t.AlertClass, t.MetricKey, t.Condition,
		t.Low, t.Medium, t.High, t.Enabled, t.LastModified,
		t.LowNotify, t.MediumNotify, t.HighNotify,
		t.ID,
	)
	if err != nil {
		logger.Log.Error("Failed to update threshold",
			zap.String("threshold_id", t.ID),
			zap.Error(err),
		)
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteThreshold removes one threshold row.
func (d *DB) DeleteThreshold(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.conn.ExecContext(ctx, `DELETE FROM alert_thresholds WHERE id = ?`, id)
	if err != nil {
		logger.Log.Error("Failed to delete threshold",
			zap.String("threshold_id", id),
			zap.Error(err),
		)
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetThresholdByID retrieves one threshold row.
func (d *DB) GetThresholdByID(ctx context.Context, id string) (*models.AlertThreshold, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	row := d.conn.QueryRowContext(ctx,
		`SELECT `+thresholdColumns+` FROM alert_thresholds WHERE id = ?`, id)
	t, err := scanThreshold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if d.handleError("GetThresholdByID", err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetEnabledThreshold returns the enabled row for a lookup key, or
// ErrNotFound when no enabled row covers the key.
func (d *DB) GetEnabledThreshold(ctx context.Context, alertType models.AlertType, class models.AlertClass, cond models.Condition) (*models.AlertThreshold, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	row := d.conn.QueryRowContext(ctx,
		`SELECT `+thresholdColumns+` FROM alert_thresholds
		 WHERE alert_type = ? AND alert_class = ? AND condition = ? AND enabled = 1
		 ORDER BY last_modified DESC LIMIT 1`,
		alertType, class, cond,
	)
	t, err := scanThreshold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if d.handleError("GetEnabledThreshold", err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetAllThresholds returns every threshold row.
func (d *DB) GetAllThresholds(ctx context.Context) ([]*models.AlertThreshold, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+thresholdColumns+` FROM alert_thresholds ORDER BY alert_class, alert_type`)
	if err != nil {
		if d.handleError("GetAllThresholds", err) {
			return []*models.AlertThreshold{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	var thresholds []*models.AlertThreshold
	for rows.Next() {
		t, err := scanThreshold(rows)
		if err != nil {
			return nil, err
		}
		thresholds = append(thresholds, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return thresholds, nil
}

func scanThreshold(row rowScanner) (*models.AlertThreshold, error) {
	var t models.AlertThreshold
	err := row.Scan(
		&t.ID,
		&t.AlertType,
		&t.AlertClass,
		&t.MetricKey,
		&t.Condition,
		&t.Low,
		&t.Medium,
		&t.High,
		&t.Enabled,
		&t.LastModified,
		&t.LowNotify,
		&t.MediumNotify,
		&t.HighNotify,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
