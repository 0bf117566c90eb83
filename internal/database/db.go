package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"perpmonitor/internal/logger"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DB wraps the SQLite handle. Writes auto-commit per operation; the handle
// is shared process-wide and used sequentially from the orchestrator, so a
// single mutex serializes access.
type DB struct {
	mu   sync.Mutex
	conn *sql.DB
	path string

	// OnCorruption is invoked after a corrupted database file has been
	// detected, before the file is recreated. The orchestrator installs
	// its death-nail handler here.
	OnCorruption func(err error)
}

// Open connects to the SQLite file at path, creating it and the schema when
// missing. Schema init is idempotent and re-run on every open.
func Open(path string) (*DB, error) {
	d := &DB{path: path}
	if err := d.connect(); err != nil {
		return nil, err
	}
	if err := d.initSchema(); err != nil {
		return nil, err
	}
	logger.Log.Info("Database connection established", zap.String("path", path))
	return d, nil
}

func (d *DB) connect() error {
	if dir := filepath.Dir(d.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	conn, err := sql.Open("sqlite3", d.path+"?_journal_mode=WAL&_busy_timeout=5000&_loc=UTC")
	if err != nil {
		return err
	}
	// SQLite permits one writer; funnel everything through one connection.
	conn.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		if isCorruption(err) {
			return d.rebuild(err)
		}
		return err
	}

	d.conn = conn
	return nil
}

// isCorruption reports whether err is one of SQLite's catastrophic
// file-level failures.
func isCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database disk image is malformed")
}

// rebuild deletes the corrupted database file plus its WAL/SHM siblings,
// reconnects and re-runs schema init. Callers holding in-flight operations
// get empty results rather than errors.
func (d *DB) rebuild(cause error) error {
	logger.Log.Error("Database corruption detected, rebuilding",
		zap.String("path", d.path),
		zap.Error(cause),
	)

	// The handler writes back through this DB, so it must not run under
	// the lock the caller is holding.
	if d.OnCorruption != nil {
		go d.OnCorruption(cause)
	}

	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	for _, p := range []string{d.path, d.path + "-wal", d.path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Log.Warn("Failed to remove database artifact",
				zap.String("path", p),
				zap.Error(err),
			)
		}
	}

	if err := d.connect(); err != nil {
		return err
	}
	return d.initSchema()
}

// handleError routes corruption to rebuild and logs everything else.
// Returns true when the error was a corruption, meaning the caller should
// return an empty result.
func (d *DB) handleError(op string, err error) bool {
	if err == nil {
		return false
	}
	if isCorruption(err) {
		if rerr := d.rebuild(err); rerr != nil {
			logger.Log.Error("Database rebuild failed",
				zap.String("op", op),
				zap.Error(rerr),
			)
		}
		return true
	}
	logger.Log.Error("Database operation failed",
		zap.String("op", op),
		zap.Error(err),
	)
	return false
}

// Path returns the database file location.
func (d *DB) Path() string {
	return d.path
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *DB) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			asset_type TEXT NOT NULL,
			position_type TEXT NOT NULL,
			entry_price REAL NOT NULL DEFAULT 0,
			liquidation_price REAL NOT NULL DEFAULT 0,
			current_price REAL NOT NULL DEFAULT 0,
			collateral REAL NOT NULL DEFAULT 0,
			size REAL NOT NULL DEFAULT 0,
			leverage REAL NOT NULL DEFAULT 0,
			value REAL NOT NULL DEFAULT 0,
			travel_percent REAL NOT NULL DEFAULT 0,
			liquidation_distance REAL NOT NULL DEFAULT 0,
			heat_index REAL NOT NULL DEFAULT 0,
			current_heat_index REAL,
			pnl_after_fees_usd REAL NOT NULL DEFAULT 0,
			wallet_name TEXT NOT NULL DEFAULT '',
			hedge_buddy_id TEXT,
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			last_updated TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS prices (
			asset_type TEXT NOT NULL,
			current_price REAL NOT NULL,
			previous_price REAL NOT NULL DEFAULT 0,
			source TEXT NOT NULL DEFAULT '',
			last_update_time TIMESTAMP NOT NULL,
			previous_update_time TIMESTAMP,
			PRIMARY KEY (asset_type, last_update_time)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			alert_type TEXT NOT NULL,
			alert_class TEXT NOT NULL,
			asset_type TEXT NOT NULL DEFAULT 'BTC',
			trigger_value REAL NOT NULL DEFAULT 0,
			condition TEXT NOT NULL DEFAULT 'ABOVE',
			notification_type TEXT NOT NULL DEFAULT 'Email',
			level TEXT NOT NULL DEFAULT 'Normal',
			last_triggered TIMESTAMP,
			status TEXT NOT NULL DEFAULT 'Active',
			frequency INTEGER NOT NULL DEFAULT 1,
			counter INTEGER NOT NULL DEFAULT 0,
			liquidation_distance REAL NOT NULL DEFAULT 0,
			travel_percent REAL NOT NULL DEFAULT 0,
			liquidation_price REAL NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			position_reference_id TEXT,
			evaluated_value REAL,
			position_type TEXT NOT NULL DEFAULT 'N/A'
		)`,
		`CREATE TABLE IF NOT EXISTS alert_thresholds (
			id TEXT PRIMARY KEY,
			alert_type TEXT NOT NULL,
			alert_class TEXT NOT NULL,
			metric_key TEXT NOT NULL,
			condition TEXT NOT NULL,
			low REAL NOT NULL,
			medium REAL NOT NULL,
			high REAL NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT 1,
			last_modified TIMESTAMP NOT NULL,
			low_notify TEXT NOT NULL DEFAULT '',
			medium_notify TEXT NOT NULL DEFAULT '',
			high_notify TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS positions_totals_history (
			id TEXT PRIMARY KEY,
			snapshot_time TIMESTAMP NOT NULL,
			total_size REAL NOT NULL DEFAULT 0,
			total_value REAL NOT NULL DEFAULT 0,
			total_collateral REAL NOT NULL DEFAULT 0,
			avg_leverage REAL NOT NULL DEFAULT 0,
			avg_travel_percent REAL NOT NULL DEFAULT 0,
			avg_heat_index REAL NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS monitor_ledger (
			id TEXT PRIMARY KEY,
			monitor_name TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			status TEXT NOT NULL,
			metadata TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS global_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS modifiers (
			key TEXT PRIMARY KEY,
			group_name TEXT NOT NULL,
			value REAL NOT NULL,
			last_modified TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			name TEXT PRIMARY KEY,
			public_address TEXT NOT NULL,
			private_key TEXT NOT NULL DEFAULT '',
			balance REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_lookup
			ON alerts (alert_type, alert_class, position_reference_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_monitor
			ON monitor_ledger (monitor_name, timestamp)`,
	}

	for _, stmt := range statements {
		if _, err := d.conn.Exec(stmt); err != nil {
			return err
		}
	}

	// Columns added after the original schema shipped.
	d.addColumnIfMissing("positions", "current_heat_index", "REAL")
	d.addColumnIfMissing("positions", "status", "TEXT NOT NULL DEFAULT 'ACTIVE'")
	d.addColumnIfMissing("alert_thresholds", "low_notify", "TEXT NOT NULL DEFAULT ''")
	d.addColumnIfMissing("alert_thresholds", "medium_notify", "TEXT NOT NULL DEFAULT ''")
	d.addColumnIfMissing("alert_thresholds", "high_notify", "TEXT NOT NULL DEFAULT ''")

	return nil
}

func (d *DB) addColumnIfMissing(table, column, decl string) {
	rows, err := d.conn.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		logger.Log.Warn("Failed to inspect table schema",
			zap.String("table", table),
			zap.Error(err),
		)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return
		}
		if name == column {
			return
		}
	}
	if err := rows.Err(); err != nil {
		return
	}

	if _, err := d.conn.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` ` + decl); err != nil {
		logger.Log.Warn("Failed to add column",
			zap.String("table", table),
			zap.String("column", column),
			zap.Error(err),
		)
	}
}
