// Package handlers serves the read-only dashboard API alongside the
// prometheus endpoint: current alerts, positions, portfolio totals and
// monitor freshness.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"perpmonitor/internal/calc"
	"perpmonitor/internal/cycle"
	"perpmonitor/internal/database"
	"perpmonitor/internal/ingest"
	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"
	"perpmonitor/internal/xcom"

	"go.uber.org/zap"
)

type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Dashboard exposes monitor state over HTTP. All endpoints are GET-only;
// mutation goes through the operator console.
type Dashboard struct {
	db *database.DB
}

// NewDashboard builds the handler set.
func NewDashboard(db *database.DB) *Dashboard {
	return &Dashboard{db: db}
}

// Register mounts the dashboard routes on mux.
func (d *Dashboard) Register(mux *http.ServeMux) {
	mux.HandleFunc("/alerts", d.AlertsHandler)
	mux.HandleFunc("/positions", d.PositionsHandler)
	mux.HandleFunc("/totals", d.TotalsHandler)
	mux.HandleFunc("/status", d.StatusHandler)
}

// AlertsHandler lists alerts, optionally filtered by class or level.
func (d *Dashboard) AlertsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	alerts, err := d.db.GetAllAlerts(r.Context())
	if err != nil {
		logger.Log.Error("Failed to fetch alerts for dashboard", zap.Error(err))
		http.Error(w, "Failed to fetch alerts", http.StatusInternalServerError)
		return
	}

	class := strings.TrimSpace(r.URL.Query().Get("class"))
	level := strings.TrimSpace(r.URL.Query().Get("level"))
	filtered := make([]*models.Alert, 0, len(alerts))
	for _, a := range alerts {
		if class != "" && !strings.EqualFold(string(a.AlertClass), class) {
			continue
		}
		if level != "" && !strings.EqualFold(string(a.Level), level) {
			continue
		}
		filtered = append(filtered, a)
	}

	writeJSON(w, Response{Message: "Alerts retrieved successfully", Data: filtered})
}

// PositionsHandler lists positions; ?active=true narrows to ACTIVE.
func (d *Dashboard) PositionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var positions []*models.Position
	var err error
	if r.URL.Query().Get("active") == "true" {
		positions, err = d.db.GetActivePositions(r.Context())
	} else {
		positions, err = d.db.GetAllPositions(r.Context())
	}
	if err != nil {
		logger.Log.Error("Failed to fetch positions for dashboard", zap.Error(err))
		http.Error(w, "Failed to fetch positions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, Response{Message: "Positions retrieved successfully", Data: positions})
}

// TotalsHandler returns the live portfolio aggregate over active
// positions, not the last stored snapshot.
func (d *Dashboard) TotalsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	positions, err := d.db.GetActivePositions(r.Context())
	if err != nil {
		logger.Log.Error("Failed to fetch positions for totals", zap.Error(err))
		http.Error(w, "Failed to compute totals", http.StatusInternalServerError)
		return
	}

	writeJSON(w, Response{
		Message: "Totals computed successfully",
		Data:    calc.Totals(positions),
	})
}

// StatusHandler reports per-monitor freshness, the data behind the
// dashboard color bands.
func (d *Dashboard) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	monitors := []string{
		cycle.CycleLedgerName,
		ingest.PositionLedgerName,
		ingest.PriceLedgerName,
		xcom.LedgerName,
	}
	report := make(map[string]*models.MonitorStatus, len(monitors))
	for _, name := range monitors {
		st, err := d.db.GetMonitorStatus(r.Context(), name)
		if err != nil {
			logger.Log.Error("Failed to read monitor status",
				zap.String("monitor", name),
				zap.Error(err),
			)
			http.Error(w, "Failed to read monitor status", http.StatusInternalServerError)
			return
		}
		report[name] = st
	}

	writeJSON(w, Response{Message: "Status retrieved successfully", Data: report})
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Log.Error("Failed to encode JSON response", zap.Error(err))
	}
}
