package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"perpmonitor/internal/cache"
	"perpmonitor/internal/database"
	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"go.uber.org/zap"
)

// PriceLedgerName identifies price ingest runs in the ledger.
const PriceLedgerName = "price_monitor"

const priceSource = "coingecko"

var geckoIDs = map[string]models.AssetType{
	"bitcoin":  models.AssetBTC,
	"ethereum": models.AssetETH,
	"solana":   models.AssetSOL,
}

// PriceSyncer pulls spot prices for the supported assets in one request.
// There is no retry; a failed pull marks the run Error and the cycle
// continues on stale prices.
type PriceSyncer struct {
	db      *database.DB
	cache   *cache.Cache
	baseURL string
	client  *http.Client
}

// NewPriceSyncer builds a syncer against the price API base URL. cache
// may be nil when no cache is deployed.
func NewPriceSyncer(db *database.DB, priceCache *cache.Cache, baseURL string) *PriceSyncer {
	return &PriceSyncer{
		db:      db,
		cache:   priceCache,
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// Sync fetches and persists the latest prices, writing one ledger entry
// per run.
func (s *PriceSyncer) Sync(ctx context.Context) error {
	prices, err := s.fetch(ctx)
	if err != nil {
		logger.Log.Error("Price fetch failed", zap.Error(err))
		s.recordLedger(ctx, models.LedgerError, fmt.Sprintf(`{"error":%q}`, err.Error()))
		return err
	}

	now := time.Now().UTC()
	stored := 0
	for asset, price := range prices {
		if err := s.db.InsertPrice(ctx, asset, price, priceSource, now); err != nil {
			continue
		}
		stored++
		if s.cache != nil {
			s.cache.SetPrice(ctx, asset, price)
		}
	}

	s.recordLedger(ctx, models.LedgerSuccess, fmt.Sprintf(`{"stored":%d}`, stored))
	return nil
}

func (s *PriceSyncer) fetch(ctx context.Context) (map[models.AssetType]float64, error) {
	url := s.baseURL + "/api/v3/simple/price?ids=bitcoin,ethereum,solana&vs_currencies=usd"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("price api status %d", resp.StatusCode)
	}

	var parsed map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}

	out := make(map[models.AssetType]float64, len(geckoIDs))
	for id, asset := range geckoIDs {
		if quote, ok := parsed[id]; ok {
			if usd, ok := quote["usd"]; ok {
				out[asset] = usd
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("price response contained no supported assets")
	}
	return out, nil
}

func (s *PriceSyncer) recordLedger(ctx context.Context, status, metadata string) {
	if err := s.db.InsertLedgerEntry(ctx, PriceLedgerName, status, metadata); err != nil {
		logger.Log.Warn("Failed to record price ledger entry", zap.Error(err))
	}
}
