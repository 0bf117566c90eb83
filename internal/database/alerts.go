package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"go.uber.org/zap"
)

const alertColumns = `
	id, created_at, alert_type, alert_class, asset_type, trigger_value,
	condition, notification_type, level, last_triggered, status, frequency,
	counter, liquidation_distance, travel_percent, liquidation_price, notes,
	description, position_reference_id, evaluated_value, position_type`

// CreateAlert inserts a fully populated alert row.
func (d *DB) CreateAlert(ctx context.Context, a *models.Alert) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.conn.ExecContext(
		ctx,
		query,
		a.ID,
		a.CreatedAt,
		a.AlertType,
		a.AlertClass,
		a.AssetType,
		a.TriggerValue,
		a.Condition,
		a.NotificationType,
		a.Level,
		timePtrToNull(a.LastTriggered),
		a.Status,
		a.Frequency,
		a.Counter,
		a.LiquidationDistance,
		a.TravelPercent,
		a.LiquidationPrice,
		a.Notes,
		a.Description,
		strPtrToNull(a.PositionReferenceID),
		floatPtrToNull(a.EvaluatedValue),
		a.PositionType,
	)
	if err != nil {
		logger.Log.Error("Failed to create alert",
			zap.String("alert_id", a.ID),
			zap.String("alert_type", string(a.AlertType)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// AlertExists reports whether an alert with the same type, class and
// position reference already exists. A nil reference matches only rows
// whose reference is NULL.
func (d *DB) AlertExists(ctx context.Context, alertType models.AlertType, class models.AlertClass, positionRef *string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		query string
		args  []any
	)
	if positionRef == nil {
		query = `SELECT 1 FROM alerts
			WHERE alert_type = ? AND alert_class = ? AND position_reference_id IS NULL LIMIT 1`
		args = []any{alertType, class}
	} else {
		query = `SELECT 1 FROM alerts
			WHERE alert_type = ? AND alert_class = ? AND position_reference_id = ? LIMIT 1`
		args = []any{alertType, class, *positionRef}
	}

	var one int
	err := d.conn.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		if d.handleError("AlertExists", err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetAllAlerts returns every alert row.
func (d *DB) GetAllAlerts(ctx context.Context) ([]*models.Alert, error) {
	return d.queryAlerts(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY created_at`)
}

// GetActiveAlerts returns alerts whose lifecycle status is Active.
func (d *DB) GetActiveAlerts(ctx context.Context) ([]*models.Alert, error) {
	return d.queryAlerts(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE status = ? ORDER BY created_at`,
		models.StatusActive,
	)
}

// GetAlertByID retrieves one alert.
func (d *DB) GetAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	row := d.conn.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if d.handleError("GetAlertByID", err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (d *DB) queryAlerts(ctx context.Context, query string, args ...any) ([]*models.Alert, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		if d.handleError("queryAlerts", err) {
			return []*models.Alert{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

// UpdateAlertLevel writes the evaluated severity for one alert.
func (d *DB) UpdateAlertLevel(ctx context.Context, id string, level models.AlertLevel) error {
	return d.updateAlertField(ctx, id, `UPDATE alerts SET level = ? WHERE id = ?`, level)
}

// UpdateAlertEvaluatedValue writes the enriched metric value for one alert.
func (d *DB) UpdateAlertEvaluatedValue(ctx context.Context, id string, value *float64) error {
	return d.updateAlertField(ctx, id, `UPDATE alerts SET evaluated_value = ? WHERE id = ?`, floatPtrToNull(value))
}

// UpdateAlertStatus changes the alert lifecycle state.
func (d *DB) UpdateAlertStatus(ctx context.Context, id string, status models.AlertStatus) error {
	return d.updateAlertField(ctx, id, `UPDATE alerts SET status = ? WHERE id = ?`, status)
}

// TouchAlertTriggered records a trigger at the given time and bumps the
// trigger counter.
func (d *DB) TouchAlertTriggered(ctx context.Context, id string, at time.Time) error {
	return d.updateAlertField(ctx, id,
		`UPDATE alerts SET last_triggered = ?, counter = counter + 1 WHERE id = ?`, at)
}

func (d *DB) updateAlertField(ctx context.Context, id, query string, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.ExecContext(ctx, query, value, id)
	if err != nil {
		logger.Log.Error("Failed to update alert",
			zap.String("alert_id", id),
			zap.Error(err),
		)
	}
	return err
}

// DeleteAlert removes one alert row.
func (d *DB) DeleteAlert(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.conn.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		logger.Log.Error("Failed to delete alert",
			zap.String("alert_id", id),
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

// DeleteAlertsByPositionRefs removes position-class alerts whose reference
// is not in keep. The portfolio sentinel reference must always be in keep.
func (d *DB) DeleteAlertsByPositionRefs(ctx context.Context, keep []string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	query := `DELETE FROM alerts
		WHERE alert_class = ? AND position_reference_id IS NOT NULL`
	args := []any{models.ClassPosition}
	if len(keep) > 0 {
		query += ` AND position_reference_id NOT IN (?` + repeatPlaceholder(len(keep)-1) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}

	result, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		if d.handleError("DeleteAlertsByPositionRefs", err) {
			return 0, nil
		}
		return 0, err
	}
	return result.RowsAffected()
}

// ClearAlerts truncates the alerts table.
func (d *DB) ClearAlerts(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.ExecContext(ctx, `DELETE FROM alerts`)
	if err != nil {
		logger.Log.Error("Failed to clear alerts", zap.Error(err))
	}
	return err
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var a models.Alert
	var lastTriggered sql.NullTime
	var positionRef sql.NullString
	var evaluated sql.NullFloat64

	err := row.Scan(
		&a.ID,
		&a.CreatedAt,
		&a.AlertType,
		&a.AlertClass,
		&a.AssetType,
		&a.TriggerValue,
		&a.Condition,
		&a.NotificationType,
		&a.Level,
		&lastTriggered,
		&a.Status,
		&a.Frequency,
		&a.Counter,
		&a.LiquidationDistance,
		&a.TravelPercent,
		&a.LiquidationPrice,
		&a.Notes,
		&a.Description,
		&positionRef,
		&evaluated,
		&a.PositionType,
	)
	if err != nil {
		return nil, err
	}

	if lastTriggered.Valid {
		t := lastTriggered.Time
		a.LastTriggered = &t
	}
	if positionRef.Valid {
		s := positionRef.String
		a.PositionReferenceID = &s
	}
	if evaluated.Valid {
		v := evaluated.Float64
		a.EvaluatedValue = &v
	}
	return &a, nil
}

func timePtrToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}
