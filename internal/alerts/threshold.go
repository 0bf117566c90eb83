package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"perpmonitor/internal/database"
	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ThresholdSnapshot is the JSON companion document kept in lockstep with
// the alert_thresholds table.
type ThresholdSnapshot struct {
	Source     string                   `json:"source"`
	Thresholds []*models.AlertThreshold `json:"thresholds"`
}

// ThresholdService wraps threshold CRUD and mirrors every mutation to a
// JSON snapshot file so the config surface survives database loss.
type ThresholdService struct {
	db       *database.DB
	jsonPath string
}

// NewThresholdService builds the service. jsonPath may be empty to
// disable the JSON mirror (used by tests that only exercise the table).
func NewThresholdService(db *database.DB, jsonPath string) *ThresholdService {
	return &ThresholdService{db: db, jsonPath: jsonPath}
}

// Get returns the enabled threshold for a key, or nil when none is
// configured.
func (s *ThresholdService) Get(ctx context.Context, alertType models.AlertType, class models.AlertClass, cond models.Condition) (*models.AlertThreshold, error) {
	t, err := s.db.GetEnabledThreshold(ctx, alertType, class, cond)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	return t, err
}

// GetAll returns every threshold row.
func (s *ThresholdService) GetAll(ctx context.Context) ([]*models.AlertThreshold, error) {
	return s.db.GetAllThresholds(ctx)
}

// Insert adds a threshold and refreshes the JSON mirror.
func (s *ThresholdService) Insert(ctx context.Context, t *models.AlertThreshold) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.LastModified.IsZero() {
		t.LastModified = time.Now().UTC()
	}
	if err := s.db.InsertThreshold(ctx, t); err != nil {
		return err
	}
	s.exportMirror(ctx)
	return nil
}

// Update rewrites a threshold and refreshes the JSON mirror.
func (s *ThresholdService) Update(ctx context.Context, t *models.AlertThreshold) error {
	t.LastModified = time.Now().UTC()
	if err := s.db.UpdateThreshold(ctx, t); err != nil {
		return err
	}
	s.exportMirror(ctx)
	return nil
}

// Delete removes a threshold and refreshes the JSON mirror.
func (s *ThresholdService) Delete(ctx context.Context, id string) error {
	if err := s.db.DeleteThreshold(ctx, id); err != nil {
		return err
	}
	s.exportMirror(ctx)
	return nil
}

// ExportJSON serializes the full threshold set as the companion document.
func (s *ThresholdService) ExportJSON(ctx context.Context) ([]byte, error) {
	thresholds, err := s.db.GetAllThresholds(ctx)
	if err != nil {
		return nil, err
	}
	snap := ThresholdSnapshot{Source: "db", Thresholds: thresholds}
	return json.MarshalIndent(snap, "", "  ")
}

// ImportJSON reconciles storage against an incoming snapshot: rows absent
// from the snapshot are deleted, matching ids updated, new ids inserted.
func (s *ThresholdService) ImportJSON(ctx context.Context, data []byte) error {
	var snap ThresholdSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}

	existing, err := s.db.GetAllThresholds(ctx)
	if err != nil {
		return err
	}
	incoming := make(map[string]*models.AlertThreshold, len(snap.Thresholds))
	for _, t := range snap.Thresholds {
		incoming[t.ID] = t
	}

	for _, old := range existing {
		if _, ok := incoming[old.ID]; !ok {
			if err := s.db.DeleteThreshold(ctx, old.ID); err != nil {
				logger.Log.Warn("Failed to delete obsolete threshold",
					zap.String("threshold_id", old.ID),
					zap.Error(err),
				)
			}
		}
	}

	have := make(map[string]bool, len(existing))
	for _, old := range existing {
		have[old.ID] = true
	}
	// Disabled rows first, so a snapshot that swaps which row holds the
	// enabled slot for a key never trips the duplicate check mid-import.
	ordered := make([]*models.AlertThreshold, 0, len(snap.Thresholds))
	for _, t := range snap.Thresholds {
		if !t.Enabled {
			ordered = append(ordered, t)
		}
	}
	for _, t := range snap.Thresholds {
		if t.Enabled {
			ordered = append(ordered, t)
		}
	}
	for _, t := range ordered {
		t.LastModified = time.Now().UTC()
		if have[t.ID] {
			err = s.db.UpdateThreshold(ctx, t)
		} else {
			err = s.db.InsertThreshold(ctx, t)
		}
		if err != nil {
			logger.Log.Warn("Failed to import threshold",
				zap.String("threshold_id", t.ID),
				zap.Error(err),
			)
		}
	}

	s.exportMirror(ctx)
	return nil
}

func (s *ThresholdService) exportMirror(ctx context.Context) {
	if s.jsonPath == "" {
		return
	}
	data, err := s.ExportJSON(ctx)
	if err != nil {
		logger.Log.Warn("Failed to build threshold snapshot", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.jsonPath, data, 0o644); err != nil {
		logger.Log.Warn("Failed to write threshold snapshot",
			zap.String("path", s.jsonPath),
			zap.Error(err),
		)
	}
}

type seedRow struct {
	alertType models.AlertType
	class     models.AlertClass
	metricKey string
	condition models.Condition
	low       float64
	medium    float64
	high      float64
}

var defaultSeeds = []seedRow{
	{models.AlertTypeTotalValue, models.ClassPortfolio, "total_value", models.ConditionAbove, 10000, 25000, 50000},
	{models.AlertTypeTotalSize, models.ClassPortfolio, "total_size", models.ConditionAbove, 10000, 50000, 100000},
	{models.AlertTypeAvgLeverage, models.ClassPortfolio, "avg_leverage", models.ConditionAbove, 2, 5, 10},
	{models.AlertTypeAvgTravelPercent, models.ClassPortfolio, "avg_travel_percent", models.ConditionAbove, -10, -5, 0},
	{models.AlertTypeValueToCollateralRatio, models.ClassPortfolio, "value_to_collateral_ratio", models.ConditionBelow, 1.2, 1.1, 1.0},
	{models.AlertTypeTotalHeat, models.ClassPortfolio, "total_heat_index", models.ConditionAbove, 30, 60, 90},
	{models.AlertTypeProfit, models.ClassPosition, "profit", models.ConditionAbove, 10, 25, 50},
	{models.AlertTypeHeatIndex, models.ClassPosition, "heat_index", models.ConditionAbove, 30, 60, 90},
	{models.AlertTypeTravelPercentLiquid, models.ClassPosition, "travel_percent_liquid", models.ConditionBelow, -10, -25, -50},
	{models.AlertTypePriceThreshold, models.ClassMarket, "current_price", models.ConditionAbove, 20000, 30000, 40000},
	{models.AlertTypeDeathNail, models.ClassSystem, "death_nail", models.ConditionAbove, 0, 0, 1},
}

// Default per-level notification channel lists.
const (
	defaultLowNotify    = "Email"
	defaultMediumNotify = "Email,SMS"
	defaultHighNotify   = "Email,SMS,Voice"
)

// SeedDefaults installs the default threshold set. Re-seeding is
// idempotent: matching keys are updated in place, missing keys inserted.
func (s *ThresholdService) SeedDefaults(ctx context.Context) error {
	existing, err := s.db.GetAllThresholds(ctx)
	if err != nil {
		return err
	}
	byKey := make(map[string]*models.AlertThreshold, len(existing))
	for _, t := range existing {
		byKey[thresholdKey(t.AlertType, t.AlertClass, t.Condition)] = t
	}

	now := time.Now().UTC()
	for _, seed := range defaultSeeds {
		row := &models.AlertThreshold{
			AlertType:    seed.alertType,
			AlertClass:   seed.class,
			MetricKey:    seed.metricKey,
			Condition:    seed.condition,
			Low:          seed.low,
			Medium:       seed.medium,
			High:         seed.high,
			Enabled:      true,
			LastModified: now,
			LowNotify:    defaultLowNotify,
			MediumNotify: defaultMediumNotify,
			HighNotify:   defaultHighNotify,
		}

		if old, ok := byKey[thresholdKey(seed.alertType, seed.class, seed.condition)]; ok {
			row.ID = old.ID
			if err := s.db.UpdateThreshold(ctx, row); err != nil {
				return err
			}
			continue
		}

		row.ID = uuid.New().String()
		if err := s.db.InsertThreshold(ctx, row); err != nil {
			return err
		}
	}

	s.exportMirror(ctx)
	logger.Log.Info("Seeded default thresholds", zap.Int("count", len(defaultSeeds)))
	return nil
}

func thresholdKey(t models.AlertType, c models.AlertClass, cond models.Condition) string {
	return string(t) + "|" + string(c) + "|" + string(cond)
}
