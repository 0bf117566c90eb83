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

// InsertPrice appends a price observation, carrying the prior observation
// forward as previous_price / previous_update_time.
func (d *DB) InsertPrice(ctx context.Context, asset models.AssetType, price float64, source string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var prevPrice float64
	var prevTime sql.NullTime
	err := d.conn.QueryRowContext(ctx,
		`SELECT current_price, last_update_time FROM prices
		 WHERE asset_type = ? ORDER BY last_update_time DESC LIMIT 1`,
		asset,
	).Scan(&prevPrice, &prevTime)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		if d.handleError("InsertPrice", err) {
			return nil
		}
		return err
	}

	_, err = d.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO prices
		 (asset_type, current_price, previous_price, source, last_update_time, previous_update_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		asset, price, prevPrice, source, at, prevTime,
	)
	if err != nil {
		logger.Log.Error("Failed to insert price",
			zap.String("asset", string(asset)),
			zap.Float64("price", price),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// GetLatestPrice returns the most recent observation for an asset, or
// ErrNotFound when the asset has never been priced.
func (d *DB) GetLatestPrice(ctx context.Context, asset models.AssetType) (*models.Price, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	row := d.conn.QueryRowContext(ctx,
		`SELECT asset_type, current_price, previous_price, source, last_update_time, previous_update_time
		 FROM prices WHERE asset_type = ? ORDER BY last_update_time DESC LIMIT 1`,
		asset,
	)
	p, err := scanPrice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if d.handleError("GetLatestPrice", err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetLatestPrices returns the newest observation per asset.
func (d *DB) GetLatestPrices(ctx context.Context) ([]*models.Price, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.conn.QueryContext(ctx,
		`SELECT p.asset_type, p.current_price, p.previous_price, p.source, p.last_update_time, p.previous_update_time
		 FROM prices p
		 JOIN (SELECT asset_type, MAX(last_update_time) AS ts FROM prices GROUP BY asset_type) latest
		   ON p.asset_type = latest.asset_type AND p.last_update_time = latest.ts`,
	)
	if err != nil {
		if d.handleError("GetLatestPrices", err) {
			return []*models.Price{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	var prices []*models.Price
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return prices, nil
}

// ClearPrices truncates the price history.
func (d *DB) ClearPrices(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.ExecContext(ctx, `DELETE FROM prices`)
	if err != nil {
		logger.Log.Error("Failed to clear prices", zap.Error(err))
	}
	return err
}

func scanPrice(row rowScanner) (*models.Price, error) {
	var p models.Price
	var prevTime sql.NullTime

	err := row.Scan(
		&p.AssetType,
		&p.CurrentPrice,
		&p.PreviousPrice,
		&p.Source,
		&p.LastUpdateTime,
		&prevTime,
	)
	if err != nil {
		return nil, err
	}
	if prevTime.Valid {
		p.PreviousUpdateTime = prevTime.Time
	}
	return &p, nil
}
