package database

import (
	"context"
	"database/sql"
	"errors"

	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"go.uber.org/zap"
)

// UpsertWallet stores or updates a wallet row. PrivateKey is expected to
// be ciphertext already; see the wallets package.
func (d *DB) UpsertWallet(ctx context.Context, w *models.Wallet) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO wallets (name, public_address, private_key, balance)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET public_address = excluded.public_address,
		     private_key = excluded.private_key, balance = excluded.balance`,
		w.Name, w.PublicAddress, w.PrivateKey, w.Balance,
	)
	if err != nil {
		logger.Log.Error("Failed to upsert wallet",
			zap.String("wallet", w.Name),
			zap.Error(err),
		)
	}
	return err
}

// GetWallet retrieves one wallet by name.
func (d *DB) GetWallet(ctx context.Context, name string) (*models.Wallet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var w models.Wallet
	err := d.conn.QueryRowContext(ctx,
		`SELECT name, public_address, private_key, balance FROM wallets WHERE name = ?`,
		name,
	).Scan(&w.Name, &w.PublicAddress, &w.PrivateKey, &w.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if d.handleError("GetWallet", err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

// GetAllWallets returns every registered wallet.
func (d *DB) GetAllWallets(ctx context.Context) ([]*models.Wallet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.conn.QueryContext(ctx,
		`SELECT name, public_address, private_key, balance FROM wallets ORDER BY name`)
	if err != nil {
		if d.handleError("GetAllWallets", err) {
			return []*models.Wallet{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	var wallets []*models.Wallet
	for rows.Next() {
		var w models.Wallet
		if err := rows.Scan(&w.Name, &w.PublicAddress, &w.PrivateKey, &w.Balance); err != nil {
			return nil, err
		}
		wallets = append(wallets, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return wallets, nil
}

// DeleteWallet removes one wallet row.
func (d *DB) DeleteWallet(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.conn.ExecContext(ctx, `DELETE FROM wallets WHERE name = ?`, name)
	if err != nil {
		logger.Log.Error("Failed to delete wallet",
			zap.String("wallet", name),
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
