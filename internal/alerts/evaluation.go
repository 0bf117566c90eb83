package alerts

import (
	"context"
	"errors"

	"perpmonitor/internal/database"
	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"go.uber.org/zap"
)

// Evaluator maps an alert's evaluated value to a severity level using the
// enabled threshold for its (type, class, condition) key.
type Evaluator struct {
	db *database.DB
}

// NewEvaluator builds an evaluator over the shared persistence handle.
func NewEvaluator(db *database.DB) *Evaluator {
	return &Evaluator{db: db}
}

// Evaluate fills in a.Level and returns it. It never panics out; any
// internal failure degrades to Normal.
func (e *Evaluator) Evaluate(ctx context.Context, a *models.Alert) (level models.AlertLevel) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Evaluation panicked",
				zap.String("alert_id", a.ID),
				zap.Any("panic", r),
			)
			level = models.LevelNormal
			a.Level = level
		}
	}()

	if a.AlertClass == models.ClassSystem && a.AlertType == models.AlertTypeDeathNail {
		a.Level = models.LevelHigh
		return a.Level
	}

	if a.EvaluatedValue == nil {
		logger.Log.Warn("Alert has no evaluated value, coercing to 0",
			zap.String("alert_id", a.ID),
			zap.String("alert_type", string(a.AlertType)),
		)
		zero := 0.0
		a.EvaluatedValue = &zero
	}
	v := *a.EvaluatedValue

	threshold, err := e.db.GetEnabledThreshold(ctx, a.AlertType, a.AlertClass, a.Condition)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			logger.Log.Error("Threshold lookup failed",
				zap.String("alert_id", a.ID),
				zap.Error(err),
			)
		}
		a.Level = fallbackLevel(v, a.TriggerValue, a.Condition)
		return a.Level
	}

	a.Level = LadderLevel(v, threshold)
	return a.Level
}

// LadderLevel applies the severity ladder for a threshold. BELOW
// thresholds are anti-monotone: high is the smallest, most severe value.
func LadderLevel(v float64, t *models.AlertThreshold) models.AlertLevel {
	switch t.Condition {
	case models.ConditionBelow:
		switch {
		case v <= t.High:
			return models.LevelHigh
		case v <= t.Medium:
			return models.LevelMedium
		case v <= t.Low:
			return models.LevelLow
		}
	default:
		switch {
		case v >= t.High:
			return models.LevelHigh
		case v >= t.Medium:
			return models.LevelMedium
		case v >= t.Low:
			return models.LevelLow
		}
	}
	return models.LevelNormal
}

func fallbackLevel(v, trigger float64, cond models.Condition) models.AlertLevel {
	if cond == models.ConditionBelow {
		if v <= trigger {
			return models.LevelHigh
		}
		return models.LevelNormal
	}
	if v >= trigger {
		return models.LevelHigh
	}
	return models.LevelNormal
}

// EvaluateAll evaluates every alert and writes level and evaluated_value
// back as single-field updates. Persistence failures are logged and do not
// stop the sweep.
func (e *Evaluator) EvaluateAll(ctx context.Context, alerts []*models.Alert) {
	for _, a := range alerts {
		level := e.Evaluate(ctx, a)

		if err := e.db.UpdateAlertLevel(ctx, a.ID, level); err != nil {
			logger.Log.Warn("Failed to persist alert level",
				zap.String("alert_id", a.ID),
				zap.Error(err),
			)
		}
		if err := e.db.UpdateAlertEvaluatedValue(ctx, a.ID, a.EvaluatedValue); err != nil {
			logger.Log.Warn("Failed to persist evaluated value",
				zap.String("alert_id", a.ID),
				zap.Error(err),
			)
		}
	}
}
