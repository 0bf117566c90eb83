package database

import (
	"context"
	"database/sql"
	"errors"

	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"go.uber.org/zap"
)

// ErrNotFound is returned when a row lookup by id matches nothing.
var ErrNotFound = errors.New("not found")

const positionColumns = `
	id, asset_type, position_type, entry_price, liquidation_price,
	current_price, collateral, size, leverage, value, travel_percent,
	liquidation_distance, heat_index, current_heat_index, pnl_after_fees_usd,
	wallet_name, hedge_buddy_id, status, last_updated`

// CreatePosition inserts a new position row. The caller is expected to have
// checked existence first; duplicate ids surface as an integrity error.
func (d *DB) CreatePosition(ctx context.Context, p *models.Position) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.conn.ExecContext(
		ctx,
		query,
		p.ID,
		p.AssetType,
		p.PositionType,
		p.EntryPrice,
		p.LiquidationPrice,
		p.CurrentPrice,
		p.Collateral,
		p.Size,
		p.Leverage,
		p.Value,
		p.TravelPercent,
		p.LiquidationDistance,
		p.HeatIndex,
		floatPtrToNull(p.CurrentHeatIndex),
		p.PnlAfterFeesUSD,
		p.WalletName,
		strPtrToNull(p.HedgeBuddyID),
		p.Status,
		p.LastUpdated,
	)

	if err != nil {
		logger.Log.Error("Failed to create position",
			zap.String("position_id", p.ID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// PositionExists reports whether a position row with the given id exists.
func (d *DB) PositionExists(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var one int
	err := d.conn.QueryRowContext(ctx, `SELECT 1 FROM positions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		d.handleError("PositionExists", err)
		return false, err
	}
	return true, nil
}

// GetPositionByID retrieves a single position.
func (d *DB) GetPositionByID(ctx context.Context, id string) (*models.Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	row := d.conn.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if d.handleError("GetPositionByID", err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetAllPositions returns every position regardless of status.
func (d *DB) GetAllPositions(ctx context.Context) ([]*models.Position, error) {
	return d.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY last_updated DESC`)
}

// GetActivePositions returns positions with status ACTIVE only.
func (d *DB) GetActivePositions(ctx context.Context) ([]*models.Position, error) {
	return d.queryPositions(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE status = ? ORDER BY last_updated DESC`,
		models.PositionActive,
	)
}

func (d *DB) queryPositions(ctx context.Context, query string, args ...any) ([]*models.Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		if d.handleError("queryPositions", err) {
			return []*models.Position{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return positions, nil
}

// UpdatePositionMetrics writes back the derived fields set by enrichment.
func (d *DB) UpdatePositionMetrics(ctx context.Context, p *models.Position) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	query := `
		UPDATE positions
		SET position_type = ?, current_price = ?, leverage = ?, value = ?,
		    travel_percent = ?, liquidation_distance = ?, heat_index = ?,
		    current_heat_index = ?, last_updated = ?
		WHERE id = ?
	`

	_, err := d.conn.ExecContext(
		ctx,
		query,
		p.PositionType,
		p.CurrentPrice,
		p.Leverage,
		p.Value,
		p.TravelPercent,
		p.LiquidationDistance,
		p.HeatIndex,
		floatPtrToNull(p.CurrentHeatIndex),
		p.LastUpdated,
		p.ID,
	)
	if err != nil {
		logger.Log.Error("Failed to update position metrics",
			zap.String("position_id", p.ID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// SetHedgeBuddy links or unlinks a position to a hedge group.
func (d *DB) SetHedgeBuddy(ctx context.Context, positionID string, hedgeID *string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.ExecContext(ctx,
		`UPDATE positions SET hedge_buddy_id = ? WHERE id = ?`,
		strPtrToNull(hedgeID), positionID,
	)
	if err != nil {
		logger.Log.Error("Failed to set hedge buddy",
			zap.String("position_id", positionID),
			zap.Error(err),
		)
	}
	return err
}

// DeletePosition removes a position row. Only the operator console calls
// this; alert cleanup of the orphaned references happens in the next cycle.
func (d *DB) DeletePosition(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.conn.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, id)
	if err != nil {
		logger.Log.Error("Failed to delete position",
			zap.String("position_id", id),
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

// ClearPositions truncates the positions table.
func (d *DB) ClearPositions(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.ExecContext(ctx, `DELETE FROM positions`)
	if err != nil {
		logger.Log.Error("Failed to clear positions", zap.Error(err))
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	var currentHeat sql.NullFloat64
	var hedgeBuddy sql.NullString

	err := row.Scan(
		&p.ID,
		&p.AssetType,
		&p.PositionType,
		&p.EntryPrice,
		&p.LiquidationPrice,
		&p.CurrentPrice,
		&p.Collateral,
		&p.Size,
		&p.Leverage,
		&p.Value,
		&p.TravelPercent,
		&p.LiquidationDistance,
		&p.HeatIndex,
		&currentHeat,
		&p.PnlAfterFeesUSD,
		&p.WalletName,
		&hedgeBuddy,
		&p.Status,
		&p.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	if currentHeat.Valid {
		val := currentHeat.Float64
		p.CurrentHeatIndex = &val
	}
	if hedgeBuddy.Valid {
		val := hedgeBuddy.String
		p.HedgeBuddyID = &val
	}

	return &p, nil
}

func floatPtrToNull(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func strPtrToNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
