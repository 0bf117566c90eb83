package database

import (
	"context"
	"time"

	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordSnapshot appends one totals row to the portfolio time series.
func (d *DB) RecordSnapshot(ctx context.Context, totals models.Totals, at time.Time) (*models.PortfolioSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := &models.PortfolioSnapshot{
		ID:           uuid.New().String(),
		SnapshotTime: at,
		Totals:       totals,
	}

	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO positions_totals_history
		 (id, snapshot_time, total_size, total_value, total_collateral,
		  avg_leverage, avg_travel_percent, avg_heat_index)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.SnapshotTime,
		totals.TotalSize, totals.TotalValue, totals.TotalCollateral,
		totals.AvgLeverage, totals.AvgTravelPercent, totals.AvgHeatIndex,
	)
	if err != nil {
		logger.Log.Error("Failed to record portfolio snapshot", zap.Error(err))
		return nil, err
	}
	return snap, nil
}

// GetSnapshots returns the most recent snapshots, newest first.
func (d *DB) GetSnapshots(ctx context.Context, limit int) ([]*models.PortfolioSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, snapshot_time, total_size, total_value, total_collateral,
		        avg_leverage, avg_travel_percent, avg_heat_index
		 FROM positions_totals_history
		 ORDER BY snapshot_time DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		if d.handleError("GetSnapshots", err) {
			return []*models.PortfolioSnapshot{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	var snaps []*models.PortfolioSnapshot
	for rows.Next() {
		var s models.PortfolioSnapshot
		err := rows.Scan(
			&s.ID,
			&s.SnapshotTime,
			&s.TotalSize,
			&s.TotalValue,
			&s.TotalCollateral,
			&s.AvgLeverage,
			&s.AvgTravelPercent,
			&s.AvgHeatIndex,
		)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snaps, nil
}

// ClearSnapshots truncates the portfolio history.
func (d *DB) ClearSnapshots(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.ExecContext(ctx, `DELETE FROM positions_totals_history`)
	if err != nil {
		logger.Log.Error("Failed to clear portfolio history", zap.Error(err))
	}
	return err
}
