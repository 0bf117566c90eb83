package cycle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"perpmonitor/internal/alerts"
	"perpmonitor/internal/logger"
	"perpmonitor/internal/metrics"
	"perpmonitor/internal/models"
	"perpmonitor/internal/xcom"

	"go.uber.org/zap"
)

// DeathNail is the terminal failure escalation path. It is fired by the
// orchestrator when a step fails and by the persistence layer on file
// corruption. A per-instance guard suppresses recursion: escalation work
// that itself fails must not re-escalate.
type DeathNail struct {
	store      *alerts.Store
	dispatcher *xcom.Dispatcher
	logPath    string
	active     atomic.Bool
}

// NewDeathNail builds the escalation path. logPath is the death log file;
// entries are appended as JSON lines.
func NewDeathNail(store *alerts.Store, dispatcher *xcom.Dispatcher, logPath string) *DeathNail {
	return &DeathNail{store: store, dispatcher: dispatcher, logPath: logPath}
}

type deathLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Step      string    `json:"step"`
	Error     string    `json:"error"`
}

// Trigger runs the full escalation: death log entry, audible alert,
// DeathNail System alert, High-severity notification. Every stage is best
// effort; Trigger itself never fails.
func (d *DeathNail) Trigger(ctx context.Context, step string, cause error) {
	if !d.active.CompareAndSwap(false, true) {
		logger.Log.Warn("Death nail already active, suppressing recursive trigger",
			zap.String("step", step),
		)
		return
	}
	defer d.active.Store(false)

	metrics.DeathNailsTotal.Inc()
	logger.Log.Error("DEATH NAIL",
		zap.String("step", step),
		zap.Error(cause),
	)

	d.appendLog(step, cause)

	if d.dispatcher != nil && d.dispatcher.Sound != nil {
		d.dispatcher.Sound.Play()
	}

	description := fmt.Sprintf("step %s failed: %v", step, cause)
	if _, err := d.store.CreateDeathNailAlert(ctx, description); err != nil {
		logger.Log.Error("Failed to create death nail alert", zap.Error(err))
	}

	if d.dispatcher != nil {
		d.dispatcher.Send(ctx, xcom.Notification{
			Severity:  models.LevelHigh,
			Subject:   "MONITOR DEATH NAIL",
			Body:      description,
			Initiator: "death_nail",
		})
	}
}

func (d *DeathNail) appendLog(step string, cause error) {
	if d.logPath == "" {
		return
	}
	entry := deathLogEntry{
		Timestamp: time.Now().UTC(),
		Step:      step,
		Error:     cause.Error(),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	f, err := os.OpenFile(d.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Log.Warn("Failed to open death log",
			zap.String("path", d.logPath),
			zap.Error(err),
		)
		return
	}
	defer f.Close()
	f.Write(append(line, '\n'))
}
