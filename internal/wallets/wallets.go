// Package wallets manages the registry of monitored venue wallets, with
// at-rest encryption for stored private keys.
package wallets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"perpmonitor/internal/database"
	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"go.uber.org/zap"
)

// EncryptionKeyEnv names the environment variable holding the passphrase
// used to derive the at-rest encryption key.
const EncryptionKeyEnv = "WALLET_ENCRYPTION_KEY"

// ErrNoEncryptionKey is returned when a secret operation is attempted
// without the key configured.
var ErrNoEncryptionKey = errors.New("wallet encryption key not configured")

// Registry stores wallets, encrypting private keys before they reach
// persistence.
type Registry struct {
	db  *database.DB
	key []byte
}

// NewRegistry derives the encryption key from the environment. A missing
// key leaves the registry usable for wallets without secrets.
func NewRegistry(db *database.DB) *Registry {
	r := &Registry{db: db}
	if passphrase := os.Getenv(EncryptionKeyEnv); passphrase != "" {
		sum := sha256.Sum256([]byte(passphrase))
		r.key = sum[:]
	} else {
		logger.Log.Warn("Wallet encryption key not set, private keys cannot be stored")
	}
	return r
}

// Save upserts a wallet, encrypting any private key first.
func (r *Registry) Save(ctx context.Context, w *models.Wallet) error {
	stored := *w
	if w.PrivateKey != "" {
		ciphertext, err := r.encrypt(w.PrivateKey)
		if err != nil {
			return fmt.Errorf("encrypt private key: %w", err)
		}
		stored.PrivateKey = ciphertext
	}
	if err := r.db.UpsertWallet(ctx, &stored); err != nil {
		return err
	}
	logger.Log.Info("Wallet saved", zap.String("wallet", w.Name))
	return nil
}

// Get returns a wallet with its private key decrypted. Wallets without a
// stored key come back with an empty PrivateKey.
func (r *Registry) Get(ctx context.Context, name string) (*models.Wallet, error) {
	w, err := r.db.GetWallet(ctx, name)
	if err != nil {
		return nil, err
	}
	if w.PrivateKey != "" {
		plaintext, err := r.decrypt(w.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt private key: %w", err)
		}
		w.PrivateKey = plaintext
	}
	return w, nil
}

// List returns every wallet with private keys redacted.
func (r *Registry) List(ctx context.Context) ([]*models.Wallet, error) {
	wallets, err := r.db.GetAllWallets(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range wallets {
		w.PrivateKey = ""
	}
	return wallets, nil
}

// Delete removes a wallet from the registry.
func (r *Registry) Delete(ctx context.Context, name string) error {
	return r.db.DeleteWallet(ctx, name)
}

func (r *Registry) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", ErrNoEncryptionKey
	}
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (r *Registry) decrypt(encoded string) (string, error) {
	if r.key == nil {
		return "", ErrNoEncryptionKey
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(sealed) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
