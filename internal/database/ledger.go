package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// staleAgeSeconds is reported when a monitor has never written a ledger
// entry, so dashboards sort never-run monitors as maximally stale.
const staleAgeSeconds = 9999

// InsertLedgerEntry appends one run record for a monitor. Metadata is a
// JSON document; pass "" for none.
func (d *DB) InsertLedgerEntry(ctx context.Context, monitorName, status, metadata string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO monitor_ledger (id, monitor_name, timestamp, status, metadata)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), monitorName, time.Now().UTC(), status, metadata,
	)
	if err != nil {
		logger.Log.Error("Failed to insert ledger entry",
			zap.String("monitor", monitorName),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// GetLastLedgerEntry returns the most recent entry for a monitor, or
// ErrNotFound when the monitor has never run.
func (d *DB) GetLastLedgerEntry(ctx context.Context, monitorName string) (*models.LedgerEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var e models.LedgerEntry
	var metadata sql.NullString
	err := d.conn.QueryRowContext(ctx,
		`SELECT id, monitor_name, timestamp, status, metadata
		 FROM monitor_ledger WHERE monitor_name = ?
		 ORDER BY timestamp DESC LIMIT 1`,
		monitorName,
	).Scan(&e.ID, &e.MonitorName, &e.Timestamp, &e.Status, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if d.handleError("GetLastLedgerEntry", err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	e.Metadata = metadata.String
	return &e, nil
}

// GetMonitorStatus derives freshness for a monitor from its last entry.
func (d *DB) GetMonitorStatus(ctx context.Context, monitorName string) (*models.MonitorStatus, error) {
	entry, err := d.GetLastLedgerEntry(ctx, monitorName)
	if errors.Is(err, ErrNotFound) {
		return &models.MonitorStatus{AgeSeconds: staleAgeSeconds}, nil
	}
	if err != nil {
		return nil, err
	}

	ts := entry.Timestamp
	age := int(time.Since(ts).Seconds())
	if age < 0 {
		age = 0
	}
	return &models.MonitorStatus{
		LastTimestamp: &ts,
		AgeSeconds:    age,
		Status:        entry.Status,
	}, nil
}

// ClearLedger truncates the monitor ledger.
func (d *DB) ClearLedger(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.ExecContext(ctx, `DELETE FROM monitor_ledger`)
	if err != nil {
		logger.Log.Error("Failed to clear ledger", zap.Error(err))
	}
	return err
}
