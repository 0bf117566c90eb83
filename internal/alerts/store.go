package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"perpmonitor/internal/database"
	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PortfolioSentinelRef marks portfolio-class alerts in the
// position_reference_id column, distinguishing them from real positions.
const PortfolioSentinelRef = "619"

// ConfigKeyThresholds is the global_config key holding the alert ranges
// blob read by the auto-creators.
const ConfigKeyThresholds = "alert_thresholds"

// MetricRange is the per-metric gate and band in the config blob.
// Enabled may be a bool or any of its stringified forms.
type MetricRange struct {
	Enabled any      `json:"enabled"`
	Low     *float64 `json:"low,omitempty"`
	Medium  *float64 `json:"medium,omitempty"`
	High    *float64 `json:"high,omitempty"`
}

// RangesConfig is the alert_thresholds blob layout.
type RangesConfig struct {
	AlertRanges struct {
		PositionsAlerts map[string]MetricRange `json:"positions_alerts"`
		PortfolioAlerts map[string]MetricRange `json:"portfolio_alerts"`
	} `json:"alert_ranges"`
}

// Truthy interprets the mixed bool/string enabled flag. Unrecognized
// non-empty strings count as true; missing values are handled by callers.
func Truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off", "":
			return false
		default:
			return true
		}
	case float64:
		return t != 0
	case int:
		return t != 0
	case nil:
		return false
	default:
		return false
	}
}

// Store owns alert rows: idempotent auto-generation gated by per-metric
// config, plus defaults injection for partially specified alerts.
type Store struct {
	db *database.DB
}

// NewStore builds a store over the shared persistence handle.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// loadRanges reads the gating config. A missing blob disables every
// metric, matching the treat-absence-as-disabled policy.
func (s *Store) loadRanges(ctx context.Context) RangesConfig {
	var cfg RangesConfig
	if err := s.db.GetConfigJSON(ctx, ConfigKeyThresholds, &cfg); err != nil {
		logger.Log.Warn("Alert ranges config unavailable, auto-creation gated off",
			zap.Error(err),
		)
	}
	return cfg
}

type positionMetric struct {
	key            string
	alertType      models.AlertType
	defaultTrigger float64
}

var positionMetrics = []positionMetric{
	{"heat_index", models.AlertTypeHeatIndex, 30.0},
	{"travel_percent", models.AlertTypeTravelPercentLiquid, 100.0},
	{"profit", models.AlertTypeProfit, 50.0},
}

// CreatePositionAlerts ensures each active position has one alert per
// enabled position metric. Returns the number of alerts created.
func (s *Store) CreatePositionAlerts(ctx context.Context, positions []*models.Position) int {
	cfg := s.loadRanges(ctx)
	created := 0

	for _, p := range positions {
		if p.Status != models.PositionActive {
			continue
		}
		for _, m := range positionMetrics {
			rng, ok := cfg.AlertRanges.PositionsAlerts[m.key]
			if !ok || !Truthy(rng.Enabled) {
				logger.Log.Debug("Position metric disabled, skipped",
					zap.String("metric", m.key),
					zap.String("position_id", p.ID),
				)
				continue
			}

			ref := p.ID
			exists, err := s.db.AlertExists(ctx, m.alertType, models.ClassPosition, &ref)
			if err != nil || exists {
				continue
			}

			trigger := m.defaultTrigger
			if rng.Medium != nil {
				trigger = *rng.Medium
			}

			a := &models.Alert{
				AlertType:           m.alertType,
				AlertClass:          models.ClassPosition,
				AssetType:           string(p.AssetType),
				TriggerValue:        trigger,
				Condition:           models.ConditionAbove,
				NotificationType:    models.NotifySMS,
				PositionReferenceID: &ref,
				PositionType:        string(p.PositionType),
				LiquidationPrice:    p.LiquidationPrice,
				LiquidationDistance: p.LiquidationDistance,
				TravelPercent:       p.TravelPercent,
				Description:         fmt.Sprintf("%s alert for %s %s", m.key, p.PositionType, p.AssetType),
			}
			if err := s.Create(ctx, a); err == nil {
				created++
				logger.Log.Info("Created position alert",
					zap.String("alert_type", string(m.alertType)),
					zap.String("position_id", p.ID),
				)
			}
		}
	}
	return created
}

type portfolioMetric struct {
	key            string
	alertType      models.AlertType
	defaultTrigger float64
	condition      models.Condition
}

var portfolioMetrics = []portfolioMetric{
	{"total_value", models.AlertTypeTotalValue, 50000, models.ConditionAbove},
	{"total_size", models.AlertTypeTotalSize, 1.0, models.ConditionAbove},
	{"avg_leverage", models.AlertTypeAvgLeverage, 2.0, models.ConditionAbove},
	{"avg_travel_percent", models.AlertTypeAvgTravelPercent, 10.0, models.ConditionAbove},
	{"value_to_collateral_ratio", models.AlertTypeValueToCollateralRatio, 1.2, models.ConditionBelow},
	{"total_heat", models.AlertTypeTotalHeat, 25.0, models.ConditionAbove},
}

// CreatePortfolioAlerts ensures one alert per enabled portfolio metric,
// all sharing the sentinel position reference.
func (s *Store) CreatePortfolioAlerts(ctx context.Context) int {
	cfg := s.loadRanges(ctx)
	created := 0

	for _, m := range portfolioMetrics {
		rng, ok := cfg.AlertRanges.PortfolioAlerts[m.key]
		if !ok || !Truthy(rng.Enabled) {
			logger.Log.Debug("Portfolio metric disabled, skipped",
				zap.String("metric", m.key),
			)
			continue
		}

		ref := PortfolioSentinelRef
		exists, err := s.db.AlertExists(ctx, m.alertType, models.ClassPortfolio, &ref)
		if err != nil || exists {
			continue
		}

		trigger := m.defaultTrigger
		if rng.Medium != nil {
			trigger = *rng.Medium
		}

		a := &models.Alert{
			AlertType:           m.alertType,
			AlertClass:          models.ClassPortfolio,
			TriggerValue:        trigger,
			Condition:           m.condition,
			NotificationType:    models.NotifySMS,
			PositionReferenceID: &ref,
			Description:         fmt.Sprintf("portfolio %s alert", m.key),
		}
		if err := s.Create(ctx, a); err == nil {
			created++
			logger.Log.Info("Created portfolio alert",
				zap.String("alert_type", string(m.alertType)),
			)
		}
	}
	return created
}

// defaultMarketTrigger seeds the standing BTC price alert.
const defaultMarketTrigger = 65000.0

// CreateMarketAlerts ensures the standing BTC price threshold alert
// exists. No-op when any BTC Market alert is already present.
func (s *Store) CreateMarketAlerts(ctx context.Context) int {
	return s.ensureMarketAlert(ctx, models.AssetBTC, defaultMarketTrigger)
}

// CreateGlobalAlerts ensures one PriceThreshold Market alert per
// supported asset, seeded from the latest observed price when available.
func (s *Store) CreateGlobalAlerts(ctx context.Context) int {
	created := 0
	for _, asset := range []models.AssetType{models.AssetBTC, models.AssetETH, models.AssetSOL} {
		trigger := defaultMarketTrigger
		if price, err := s.db.GetLatestPrice(ctx, asset); err == nil {
			trigger = price.CurrentPrice
		}
		created += s.ensureMarketAlert(ctx, asset, trigger)
	}
	return created
}

func (s *Store) ensureMarketAlert(ctx context.Context, asset models.AssetType, trigger float64) int {
	exists, err := s.marketAlertExists(ctx, asset)
	if err != nil || exists {
		return 0
	}

	a := &models.Alert{
		AlertType:        models.AlertTypePriceThreshold,
		AlertClass:       models.ClassMarket,
		AssetType:        string(asset),
		TriggerValue:     trigger,
		Condition:        models.ConditionAbove,
		NotificationType: models.NotifySMS,
		Description:      fmt.Sprintf("%s price threshold", asset),
	}
	if err := s.Create(ctx, a); err != nil {
		return 0
	}
	logger.Log.Info("Created market alert",
		zap.String("asset", string(asset)),
		zap.Float64("trigger", trigger),
	)
	return 1
}

// marketAlertExists narrows the NULL-reference existence check by asset,
// since market alerts all carry a nil position reference.
func (s *Store) marketAlertExists(ctx context.Context, asset models.AssetType) (bool, error) {
	all, err := s.db.GetAllAlerts(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range all {
		if a.AlertClass == models.ClassMarket &&
			a.AlertType == models.AlertTypePriceThreshold &&
			a.AssetType == string(asset) {
			return true, nil
		}
	}
	return false, nil
}

// CreateDeathNailAlert records a System DeathNail alert. Each escalation
// creates a fresh row so the history of terminal failures is preserved.
func (s *Store) CreateDeathNailAlert(ctx context.Context, description string) (*models.Alert, error) {
	a := &models.Alert{
		AlertType:        models.AlertTypeDeathNail,
		AlertClass:       models.ClassSystem,
		Condition:        models.ConditionAbove,
		TriggerValue:     1,
		Level:            models.LevelHigh,
		NotificationType: models.NotifyPhoneCall,
		Description:      description,
	}
	one := 1.0
	a.EvaluatedValue = &one
	if err := s.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Create injects defaults for any unset required field and inserts.
func (s *Store) Create(ctx context.Context, a *models.Alert) error {
	InitializeAlertData(a)
	return s.db.CreateAlert(ctx, a)
}

// InitializeAlertData populates the required fields an alert must carry
// before insertion: id, timestamps, status, level, frequency.
func InitializeAlertData(a *models.Alert) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = models.StatusActive
	}
	if a.Level == "" {
		a.Level = models.LevelNormal
	}
	if a.Condition == "" {
		a.Condition = models.ConditionAbove
	}
	if a.NotificationType == "" {
		a.NotificationType = models.NotifyEmail
	}
	if a.AssetType == "" {
		a.AssetType = string(models.AssetBTC)
	}
	if a.PositionType == "" {
		a.PositionType = "N/A"
	}
	if a.Frequency < 1 {
		a.Frequency = 1
	}
}

// CleanseIDs deletes position-class alerts whose referenced position no
// longer exists. Returns the number of rows removed.
func (s *Store) CleanseIDs(ctx context.Context) (int64, error) {
	positions, err := s.db.GetAllPositions(ctx)
	if err != nil {
		return 0, err
	}
	keep := make([]string, 0, len(positions)+1)
	for _, p := range positions {
		keep = append(keep, p.ID)
	}
	keep = append(keep, PortfolioSentinelRef)

	removed, err := s.db.DeleteAlertsByPositionRefs(ctx, keep)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logger.Log.Info("Cleansed stale position alerts", zap.Int64("removed", removed))
	}
	return removed, nil
}
