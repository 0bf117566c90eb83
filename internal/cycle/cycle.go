// Package cycle is the periodic orchestrator: it advances the named
// monitoring steps in order and owns the death-nail escalation path.
package cycle

import (
	"context"
	"fmt"
	"time"

	"perpmonitor/internal/alerts"
	"perpmonitor/internal/calc"
	"perpmonitor/internal/database"
	"perpmonitor/internal/ingest"
	"perpmonitor/internal/logger"
	"perpmonitor/internal/metrics"
	"perpmonitor/internal/models"
	"perpmonitor/internal/xcom"

	"go.uber.org/zap"
)

// CycleLedgerName identifies full cycle runs in the monitor ledger.
const CycleLedgerName = "cycle_monitor"

// DefaultSteps is the full cycle in canonical order.
var DefaultSteps = []string{
	"update_operations",
	"market_updates",
	"check_jupiter_for_updates",
	"enrich_positions",
	"enrich_alerts",
	"update_evaluated_value",
	"create_market_alerts",
	"create_portfolio_alerts",
	"create_position_alerts",
	"create_global_alerts",
	"evaluate_alerts",
	"cleanse_ids",
	"link_hedges",
	"update_hedges",
}

// Orchestrator sequences cycle steps over the shared services. Steps run
// strictly in order; a step failure triggers the death nail and aborts
// the remaining steps.
type Orchestrator struct {
	db         *database.DB
	engine     *calc.Engine
	enricher   *alerts.Enricher
	evaluator  *alerts.Evaluator
	store      *alerts.Store
	positions  *ingest.PositionSyncer
	prices     *ingest.PriceSyncer
	dispatcher *xcom.Dispatcher
	death      *DeathNail
}

// NewOrchestrator wires the orchestrator from its services.
func NewOrchestrator(
	db *database.DB,
	engine *calc.Engine,
	enricher *alerts.Enricher,
	evaluator *alerts.Evaluator,
	store *alerts.Store,
	positions *ingest.PositionSyncer,
	prices *ingest.PriceSyncer,
	dispatcher *xcom.Dispatcher,
	death *DeathNail,
) *Orchestrator {
	return &Orchestrator{
		db:         db,
		engine:     engine,
		enricher:   enricher,
		evaluator:  evaluator,
		store:      store,
		positions:  positions,
		prices:     prices,
		dispatcher: dispatcher,
		death:      death,
	}
}

// cycleState carries per-cycle scratch between steps; it never outlives
// one RunCycle call.
type cycleState struct {
	alerts  []*models.Alert
	errored bool
}

// RunCycle executes the named steps in the given order. A nil or empty
// list means the full default cycle. Unknown step names are warned and
// skipped. The first step failure escalates through the death nail and
// aborts the rest.
func (o *Orchestrator) RunCycle(ctx context.Context, steps []string) error {
	if len(steps) == 0 {
		steps = DefaultSteps
	}

	state := &cycleState{}
	start := time.Now()
	logger.Log.Info("Cycle started", zap.Strings("steps", steps))

	for _, name := range steps {
		if err := o.runStep(ctx, name, state); err != nil {
			o.death.Trigger(ctx, name, err)
			metrics.CycleRunsTotal.WithLabelValues("death_nail").Inc()
			o.recordLedger(ctx, models.LedgerError, fmt.Sprintf(`{"failed_step":%q}`, name))
			return fmt.Errorf("cycle aborted at %s: %w", name, err)
		}

		// The threshold config blob may have changed out of band; pick
		// it up before the alert steps run.
		if name == "update_operations" {
			o.reloadConfig(ctx)
		}
	}

	status := models.LedgerSuccess
	outcome := "success"
	if state.errored {
		status = models.LedgerError
		outcome = "error"
	}
	metrics.CycleRunsTotal.WithLabelValues(outcome).Inc()
	o.recordLedger(ctx, status, fmt.Sprintf(`{"duration_ms":%d}`, time.Since(start).Milliseconds()))
	logger.Log.Info("Cycle finished",
		zap.String("status", status),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func (o *Orchestrator) runStep(ctx context.Context, name string, state *cycleState) (err error) {
	fn, ok := o.stepFunc(name)
	if !ok {
		logger.Log.Warn("Unknown cycle step, skipped", zap.String("step", name))
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %s panicked: %v", name, r)
		}
	}()

	start := time.Now()
	err = fn(ctx, state)
	metrics.StepDurationSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err == nil {
		logger.Log.Debug("Step completed",
			zap.String("step", name),
			zap.Duration("took", time.Since(start)),
		)
	}
	return err
}

type stepFn func(context.Context, *cycleState) error

func (o *Orchestrator) stepFunc(name string) (stepFn, bool) {
	switch name {
	case "update_operations":
		return o.updateOperations, true
	case "market_updates":
		return o.marketUpdates, true
	case "check_jupiter_for_updates":
		return o.checkJupiterForUpdates, true
	case "enrich_positions":
		return o.enrichPositions, true
	case "enrich_alerts":
		return o.enrichAlerts, true
	case "update_evaluated_value":
		return o.updateEvaluatedValue, true
	case "create_market_alerts":
		return o.createMarketAlerts, true
	case "create_portfolio_alerts":
		return o.createPortfolioAlerts, true
	case "create_position_alerts":
		return o.createPositionAlerts, true
	case "create_global_alerts":
		return o.createGlobalAlerts, true
	case "evaluate_alerts":
		return o.evaluateAlerts, true
	case "cleanse_ids":
		return o.cleanseIDs, true
	case "link_hedges":
		return o.linkHedges, true
	case "update_hedges":
		return o.updateHedges, true
	}
	return nil, false
}

// updateOperations is the cycle heartbeat: it verifies persistence is
// reachable and stamps the ledger before any real work.
func (o *Orchestrator) updateOperations(ctx context.Context, _ *cycleState) error {
	if _, err := o.db.GetMonitorStatus(ctx, CycleLedgerName); err != nil {
		return err
	}
	return nil
}

// reloadConfig refreshes values cached outside persistence: the risk
// engine weights and, implicitly, the alert ranges blob which the store
// re-reads on every call.
func (o *Orchestrator) reloadConfig(ctx context.Context) {
	fresh := calc.LoadEngine(ctx, o.db)
	*o.engine = *fresh
	logger.Log.Debug("Reloaded risk weights and alert ranges",
		zap.Float64("distance_weight", o.engine.DistanceWeight),
	)
}

// marketUpdates pulls fresh prices. A failed pull marks the cycle Error
// but is not terminal; the cycle continues on stale prices.
func (o *Orchestrator) marketUpdates(ctx context.Context, state *cycleState) error {
	if err := o.prices.Sync(ctx); err != nil {
		state.errored = true
	}
	return nil
}

func (o *Orchestrator) checkJupiterForUpdates(ctx context.Context, state *cycleState) error {
	summary := o.positions.SyncAll(ctx)
	if summary.Errors > 0 {
		state.errored = true
	}
	return nil
}

func (o *Orchestrator) enrichPositions(ctx context.Context, _ *cycleState) error {
	positions, err := o.db.GetActivePositions(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, p := range positions {
		if price, err := o.db.GetLatestPrice(ctx, p.AssetType); err == nil {
			p.CurrentPrice = price.CurrentPrice
		}
		o.engine.Enrich(p, now)
		if err := o.db.UpdatePositionMetrics(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) enrichAlerts(ctx context.Context, state *cycleState) error {
	active, err := o.db.GetActiveAlerts(ctx)
	if err != nil {
		return err
	}
	state.alerts = o.enricher.EnrichAll(ctx, active)
	return nil
}

func (o *Orchestrator) updateEvaluatedValue(ctx context.Context, state *cycleState) error {
	for _, a := range state.alerts {
		if err := o.db.UpdateAlertEvaluatedValue(ctx, a.ID, a.EvaluatedValue); err != nil {
			logger.Log.Warn("Failed to persist evaluated value",
				zap.String("alert_id", a.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (o *Orchestrator) createMarketAlerts(ctx context.Context, _ *cycleState) error {
	o.store.CreateMarketAlerts(ctx)
	return nil
}

func (o *Orchestrator) createPortfolioAlerts(ctx context.Context, _ *cycleState) error {
	o.store.CreatePortfolioAlerts(ctx)
	return nil
}

func (o *Orchestrator) createPositionAlerts(ctx context.Context, _ *cycleState) error {
	positions, err := o.db.GetActivePositions(ctx)
	if err != nil {
		return err
	}
	o.store.CreatePositionAlerts(ctx, positions)
	return nil
}

func (o *Orchestrator) createGlobalAlerts(ctx context.Context, _ *cycleState) error {
	o.store.CreateGlobalAlerts(ctx)
	return nil
}

// evaluateAlerts runs the portfolio totals path, then the generic ladder
// evaluation, then dispatches notifications for elevated alerts.
func (o *Orchestrator) evaluateAlerts(ctx context.Context, _ *cycleState) error {
	positions, err := o.db.GetActivePositions(ctx)
	if err != nil {
		return err
	}
	totals := calc.Totals(positions)
	if err := EvaluatePortfolio(ctx, o.db, totals); err != nil {
		return err
	}

	active, err := o.db.GetActiveAlerts(ctx)
	if err != nil {
		return err
	}
	o.evaluator.EvaluateAll(ctx, active)

	counts := map[models.AlertLevel]int{
		models.LevelNormal: 0, models.LevelLow: 0,
		models.LevelMedium: 0, models.LevelHigh: 0,
	}
	now := time.Now().UTC()
	for _, a := range active {
		counts[a.Level]++
		if a.Level == models.LevelNormal {
			continue
		}

		o.dispatcher.Send(ctx, xcom.Notification{
			Severity:  a.Level,
			Subject:   fmt.Sprintf("%s alert %s", a.AlertType, a.Level),
			Body:      alertBody(a),
			Initiator: "evaluate_alerts",
		})
		if err := o.db.TouchAlertTriggered(ctx, a.ID, now); err != nil {
			logger.Log.Warn("Failed to stamp alert trigger",
				zap.String("alert_id", a.ID),
				zap.Error(err),
			)
		}
	}
	for level, n := range counts {
		metrics.AlertsByLevel.WithLabelValues(string(level)).Set(float64(n))
	}
	return nil
}

func (o *Orchestrator) cleanseIDs(ctx context.Context, _ *cycleState) error {
	_, err := o.store.CleanseIDs(ctx)
	return err
}

func (o *Orchestrator) linkHedges(ctx context.Context, _ *cycleState) error {
	_, err := LinkHedges(ctx, o.db)
	return err
}

func (o *Orchestrator) updateHedges(ctx context.Context, _ *cycleState) error {
	hedges, err := BuildHedges(ctx, o.db)
	if err != nil {
		return err
	}
	for _, h := range hedges {
		logger.Log.Info("Hedge updated",
			zap.String("hedge_id", h.ID),
			zap.Int("positions", len(h.PositionIDs)),
			zap.Float64("long_size", h.TotalLongSize),
			zap.Float64("short_size", h.TotalShortSize),
			zap.Float64("total_heat", h.TotalHeatIndex),
		)
	}
	return nil
}

func alertBody(a *models.Alert) string {
	v := 0.0
	if a.EvaluatedValue != nil {
		v = *a.EvaluatedValue
	}
	ref := ""
	if a.PositionReferenceID != nil {
		ref = " position " + *a.PositionReferenceID
	}
	return fmt.Sprintf("%s/%s%s evaluated %.2f against trigger %.2f (%s)",
		a.AlertClass, a.AlertType, ref, v, a.TriggerValue, a.Condition)
}

func (o *Orchestrator) recordLedger(ctx context.Context, status, metadata string) {
	if err := o.db.InsertLedgerEntry(ctx, CycleLedgerName, status, metadata); err != nil {
		logger.Log.Warn("Failed to record cycle ledger entry", zap.Error(err))
	}
}
