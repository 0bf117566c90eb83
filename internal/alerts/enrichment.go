package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"perpmonitor/internal/calc"
	"perpmonitor/internal/database"
	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"go.uber.org/zap"
)

// defaultHeatIndex stands in when a position has never had its heat index
// computed, keeping evaluation sane instead of skipping the alert.
const defaultHeatIndex = 5.0

// Enricher fills alert evaluated values from positions and market prices.
type Enricher struct {
	db     *database.DB
	engine *calc.Engine
}

// NewEnricher builds an enricher over the shared persistence handle.
func NewEnricher(db *database.DB, engine *calc.Engine) *Enricher {
	return &Enricher{db: db, engine: engine}
}

// Enrich sets a.EvaluatedValue according to the alert class. On failure
// the alert is returned unmodified and the error is logged.
func (e *Enricher) Enrich(ctx context.Context, a *models.Alert) *models.Alert {
	switch a.AlertClass {
	case models.ClassPosition:
		e.enrichPosition(ctx, a)
	case models.ClassMarket:
		e.enrichMarket(ctx, a)
	case models.ClassPortfolio:
		// Portfolio values are evaluated from totals by the orchestrator;
		// the generic pipeline only guarantees a non-nil value.
		zero := 0.0
		a.EvaluatedValue = &zero
	case models.ClassSystem:
		one := 1.0
		a.EvaluatedValue = &one
	default:
		logger.Log.Warn("Unknown alert class, skipping enrichment",
			zap.String("alert_id", a.ID),
			zap.String("alert_class", string(a.AlertClass)),
		)
	}
	return a
}

func (e *Enricher) enrichPosition(ctx context.Context, a *models.Alert) {
	alertType, ok := NormalizeAlertType(string(a.AlertType))
	if !ok {
		logger.Log.Error("Unresolvable alert type",
			zap.String("alert_id", a.ID),
			zap.String("alert_type", string(a.AlertType)),
		)
		return
	}

	if a.PositionReferenceID == nil {
		logger.Log.Error("Position alert without position reference",
			zap.String("alert_id", a.ID),
		)
		return
	}

	pos, err := e.db.GetPositionByID(ctx, *a.PositionReferenceID)
	if err != nil {
		logger.Log.Error("Failed to load position for alert",
			zap.String("alert_id", a.ID),
			zap.String("position_id", *a.PositionReferenceID),
			zap.Error(err),
		)
		return
	}

	switch alertType {
	case models.AlertTypeProfit:
		v := pos.PnlAfterFeesUSD
		a.EvaluatedValue = &v
	case models.AlertTypeHeatIndex:
		if pos.CurrentHeatIndex != nil {
			v := *pos.CurrentHeatIndex
			a.EvaluatedValue = &v
		} else {
			v := defaultHeatIndex
			a.EvaluatedValue = &v
			appendNote(a, fmt.Sprintf("heat index missing, defaulted to %.1f", defaultHeatIndex))
		}
	case models.AlertTypeTravelPercentLiquid:
		price, err := e.db.GetLatestPrice(ctx, pos.AssetType)
		if err != nil {
			zero := 0.0
			a.EvaluatedValue = &zero
			appendNote(a, fmt.Sprintf("no market price for %s, travel percent defaulted to 0", pos.AssetType))
			if !errors.Is(err, database.ErrNotFound) {
				logger.Log.Error("Price lookup failed during enrichment",
					zap.String("alert_id", a.ID),
					zap.Error(err),
				)
			}
			return
		}
		v := calc.TravelPercent(pos.PositionType, pos.EntryPrice, price.CurrentPrice, pos.LiquidationPrice)
		a.EvaluatedValue = &v
	default:
		logger.Log.Warn("Alert type not enrichable for position class",
			zap.String("alert_id", a.ID),
			zap.String("alert_type", string(alertType)),
		)
	}
}

func (e *Enricher) enrichMarket(ctx context.Context, a *models.Alert) {
	price, err := e.db.GetLatestPrice(ctx, models.AssetType(a.AssetType))
	if err != nil {
		zero := 0.0
		a.EvaluatedValue = &zero
		if !errors.Is(err, database.ErrNotFound) {
			logger.Log.Error("Market price lookup failed",
				zap.String("alert_id", a.ID),
				zap.String("asset", a.AssetType),
				zap.Error(err),
			)
		}
		return
	}
	v := price.CurrentPrice
	a.EvaluatedValue = &v
}

// EnrichAll enriches concurrently while preserving input order: result[i]
// always corresponds to alerts[i].
func (e *Enricher) EnrichAll(ctx context.Context, alerts []*models.Alert) []*models.Alert {
	results := make([]*models.Alert, len(alerts))
	var wg sync.WaitGroup
	for i, a := range alerts {
		wg.Add(1)
		go func(i int, a *models.Alert) {
			defer wg.Done()
			results[i] = e.Enrich(ctx, a)
		}(i, a)
	}
	wg.Wait()
	return results
}

func appendNote(a *models.Alert, note string) {
	stamp := time.Now().UTC().Format("2006-01-02 15:04:05")
	if a.Notes != "" {
		a.Notes += "; "
	}
	a.Notes += fmt.Sprintf("[%s] %s", stamp, note)
}
