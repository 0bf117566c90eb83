// Package ingest pulls position snapshots and market prices from external
// APIs into local persistence.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"perpmonitor/internal/calc"
	"perpmonitor/internal/database"
	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"go.uber.org/zap"
)

// PositionLedgerName identifies position ingest runs in the ledger.
const PositionLedgerName = "position_monitor"

const (
	maxAttempts    = 3
	requestTimeout = 10 * time.Second
	backoffBase    = time.Second
)

// mintToAsset maps venue token mints to supported assets.
var mintToAsset = map[string]models.AssetType{
	"3NZ9JMVBmGAqocybic2c7LQCJScmgsAZ6vQqTDzcqmJh": models.AssetBTC,
	"7vfCXTUXx5WJV5JADk17DUJ4ksgau7utNKj4b963voxs": models.AssetETH,
	"So11111111111111111111111111111111111111112":  models.AssetSOL,
}

// Summary reports one ingest run.
type Summary struct {
	Imported  int       `json:"imported"`
	Skipped   int       `json:"skipped"`
	Errors    int       `json:"errors"`
	Timestamp time.Time `json:"timestamp"`
}

// PositionSyncer pulls open perp positions for registered wallets from
// the venue position API.
type PositionSyncer struct {
	db      *database.DB
	engine  *calc.Engine
	baseURL string
	client  *http.Client
}

// NewPositionSyncer builds a syncer against the venue API base URL.
func NewPositionSyncer(db *database.DB, engine *calc.Engine, baseURL string) *PositionSyncer {
	return &PositionSyncer{
		db:      db,
		engine:  engine,
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// venuePosition is the wire shape of one position record.
type venuePosition struct {
	PositionPubkey  string  `json:"positionPubkey"`
	Marker          string  `json:"marketMint"`
	Side            string  `json:"side"`
	EntryPrice      float64 `json:"entryPrice,string"`
	LiquidationPrice float64 `json:"liquidationPrice,string"`
	MarkPrice       float64 `json:"markPrice,string"`
	Collateral      float64 `json:"collateralUsd,string"`
	Size            float64 `json:"sizeUsd,string"`
	PnlAfterFees    float64 `json:"pnlAfterFeesUsd,string"`
	Leverage        float64 `json:"leverage,string"`
}

type venueResponse struct {
	DataList []venuePosition `json:"dataList"`
}

// SyncAll ingests positions for every registered wallet, then records a
// totals snapshot and a ledger entry. Per-wallet failures count as
// errors; the run itself never fails.
func (s *PositionSyncer) SyncAll(ctx context.Context) Summary {
	summary := Summary{Timestamp: time.Now().UTC()}

	wallets, err := s.db.GetAllWallets(ctx)
	if err != nil {
		logger.Log.Error("Failed to list wallets for ingest", zap.Error(err))
		summary.Errors++
	}

	for _, w := range wallets {
		if w.PublicAddress == "" {
			continue
		}
		imported, skipped, err := s.syncWallet(ctx, w)
		summary.Imported += imported
		summary.Skipped += skipped
		if err != nil {
			logger.Log.Error("Wallet ingest failed",
				zap.String("wallet", w.Name),
				zap.Error(err),
			)
			summary.Errors++
		}
	}

	s.recordTotals(ctx)
	s.recordLedger(ctx, summary)
	return summary
}

func (s *PositionSyncer) syncWallet(ctx context.Context, w *models.Wallet) (imported, skipped int, err error) {
	records, err := s.fetchPositions(ctx, w.PublicAddress)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now().UTC()
	for _, rec := range records {
		if rec.PositionPubkey == "" {
			continue
		}

		exists, err := s.db.PositionExists(ctx, rec.PositionPubkey)
		if err != nil {
			continue
		}
		if exists {
			skipped++
			continue
		}

		asset, ok := mintToAsset[rec.Marker]
		if !ok {
			logger.Log.Warn("Unknown asset mint, defaulting to BTC",
				zap.String("mint", rec.Marker),
				zap.String("position_id", rec.PositionPubkey),
			)
			asset = models.AssetBTC
		}

		p := &models.Position{
			ID:               rec.PositionPubkey,
			AssetType:        asset,
			PositionType:     normalizeSide(rec.Side),
			EntryPrice:       rec.EntryPrice,
			LiquidationPrice: rec.LiquidationPrice,
			CurrentPrice:     rec.MarkPrice,
			Collateral:       rec.Collateral,
			Size:             rec.Size,
			PnlAfterFeesUSD:  rec.PnlAfterFees,
			WalletName:       w.Name,
			Status:           models.PositionActive,
		}
		s.engine.Enrich(p, now)

		if err := s.db.CreatePosition(ctx, p); err != nil {
			continue
		}
		imported++
	}
	return imported, skipped, nil
}

// fetchPositions performs the wallet GET with bounded retries and linear
// backoff scaled by the attempt number.
func (s *PositionSyncer) fetchPositions(ctx context.Context, walletAddress string) ([]venuePosition, error) {
	url := fmt.Sprintf("%s/v1/positions?walletAddress=%s", s.baseURL, walletAddress)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		records, err := s.fetchOnce(ctx, url)
		if err == nil {
			return records, nil
		}
		lastErr = err
		logger.Log.Warn("Position fetch attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt < maxAttempts {
			select {
			case <-time.After(backoffBase * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (s *PositionSyncer) fetchOnce(ctx context.Context, url string) ([]venuePosition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("position api status %d", resp.StatusCode)
	}

	var parsed venueResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode position response: %w", err)
	}
	return parsed.DataList, nil
}

func (s *PositionSyncer) recordTotals(ctx context.Context) {
	positions, err := s.db.GetActivePositions(ctx)
	if err != nil {
		logger.Log.Warn("Skipping totals snapshot", zap.Error(err))
		return
	}
	totals := calc.Totals(positions)
	if _, err := s.db.RecordSnapshot(ctx, totals, time.Now().UTC()); err != nil {
		logger.Log.Warn("Failed to record totals snapshot", zap.Error(err))
	}
}

func (s *PositionSyncer) recordLedger(ctx context.Context, summary Summary) {
	status := models.LedgerSuccess
	if summary.Errors > 0 {
		status = models.LedgerError
	}
	metadata, _ := json.Marshal(summary)
	if err := s.db.InsertLedgerEntry(ctx, PositionLedgerName, status, string(metadata)); err != nil {
		logger.Log.Warn("Failed to record ingest ledger entry", zap.Error(err))
	}
}

func normalizeSide(side string) models.PositionType {
	switch side {
	case "long", "LONG", "Long":
		return models.PositionLong
	case "short", "SHORT", "Short":
		return models.PositionShort
	default:
		logger.Log.Warn("Unknown position side", zap.String("side", side))
		return models.PositionUnknown
	}
}
