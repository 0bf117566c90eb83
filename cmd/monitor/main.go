package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"perpmonitor/internal/alerts"
	"perpmonitor/internal/cache"
	"perpmonitor/internal/calc"
	"perpmonitor/internal/cycle"
	"perpmonitor/internal/database"
	"perpmonitor/internal/handlers"
	"perpmonitor/internal/ingest"
	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"
	"perpmonitor/internal/wallets"
	"perpmonitor/internal/xcom"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagDBPath   string
	flagJSONPath string
	flagDeathLog string
	flagSound    string
)

func main() {
	godotenv.Load()
	logger.InitLogger()
	defer logger.Log.Sync()

	root := &cobra.Command{
		Use:   "perpmonitor",
		Short: "Leveraged perp position monitor",
		Long:  "Monitors leveraged perpetual positions, evaluates alert thresholds and dispatches notifications.",
	}

	root.PersistentFlags().StringVar(&flagDBPath, "db", envOr("DB_PATH", "perpmonitor.db"), "database file path")
	root.PersistentFlags().StringVar(&flagJSONPath, "thresholds-json", envOr("THRESHOLDS_JSON", "alert_thresholds.json"), "threshold snapshot file")
	root.PersistentFlags().StringVar(&flagDeathLog, "death-log", envOr("DEATH_LOG", "death.log"), "death log file")
	root.PersistentFlags().StringVar(&flagSound, "sound", os.Getenv("ALERT_SOUND"), "audible alert sound file")

	root.AddCommand(
		runCmd(),
		cycleCmd(),
		seedCmd(),
		thresholdsCmd(),
		statusCmd(),
		walletCmd(),
		maintenanceCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// services bundles everything a command needs; built per invocation.
type services struct {
	db           *database.DB
	engine       *calc.Engine
	store        *alerts.Store
	thresholds   *alerts.ThresholdService
	dispatcher   *xcom.Dispatcher
	death        *cycle.DeathNail
	orchestrator *cycle.Orchestrator
	registry     *wallets.Registry
	cache        *cache.Cache
}

func buildServices(ctx context.Context) (*services, error) {
	db, err := database.Open(flagDBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	engine := calc.LoadEngine(ctx, db)
	store := alerts.NewStore(db)
	thresholds := alerts.NewThresholdService(db, flagJSONPath)
	dispatcher := xcom.NewDispatcher(ctx, db, flagSound)
	death := cycle.NewDeathNail(store, dispatcher, flagDeathLog)

	// Corrupted database files escalate like any other terminal failure.
	db.OnCorruption = func(cause error) {
		death.Trigger(context.Background(), "persistence", cause)
	}

	priceCache := cache.New(ctx, os.Getenv("REDIS_ADDR"))
	enricher := alerts.NewEnricher(db, engine)
	evaluator := alerts.NewEvaluator(db)
	positions := ingest.NewPositionSyncer(db, engine, envOr("JUPITER_API_BASE", "https://perps-api.jup.ag"))
	prices := ingest.NewPriceSyncer(db, priceCache, envOr("COINGECKO_API_BASE", "https://api.coingecko.com"))

	orchestrator := cycle.NewOrchestrator(db, engine, enricher, evaluator, store, positions, prices, dispatcher, death)

	return &services{
		db:           db,
		engine:       engine,
		store:        store,
		thresholds:   thresholds,
		dispatcher:   dispatcher,
		death:        death,
		orchestrator: orchestrator,
		registry:     wallets.NewRegistry(db),
		cache:        priceCache,
	}, nil
}

func (s *services) close() {
	s.cache.Close()
	s.db.Close()
}

func runCmd() *cobra.Command {
	var interval time.Duration
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitor loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := buildServices(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			go serveDashboard(ctx, metricsAddr, s)

			logger.Log.Info("Monitor loop started",
				zap.Duration("interval", interval),
				zap.String("db", flagDBPath),
			)

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				if err := s.orchestrator.RunCycle(ctx, nil); err != nil {
					logger.Log.Error("Cycle failed", zap.Error(err))
				}
				select {
				case <-ctx.Done():
					logger.Log.Info("Monitor loop stopped")
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 60*time.Second, "time between cycles")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", envOr("METRICS_ADDR", ":9090"), "prometheus endpoint address")
	return cmd
}

func cycleCmd() *cobra.Command {
	var steps []string

	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one cycle and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := buildServices(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()
			return s.orchestrator.RunCycle(cmd.Context(), steps)
		},
	}

	cmd.Flags().StringSliceVar(&steps, "steps", nil, "subset of cycle steps to run, in order")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install default thresholds and alert ranges",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := buildServices(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			if err := s.thresholds.SeedDefaults(ctx); err != nil {
				return err
			}
			if err := seedAlertRanges(ctx, s.db); err != nil {
				return err
			}
			fmt.Println("defaults seeded")
			return nil
		},
	}
}

// seedAlertRanges installs an enabled-everything ranges blob when none
// exists, so a fresh deployment auto-creates alerts out of the box.
func seedAlertRanges(ctx context.Context, db *database.DB) error {
	if _, err := db.GetConfigValue(ctx, alerts.ConfigKeyThresholds); err == nil {
		return nil
	}

	var cfg alerts.RangesConfig
	cfg.AlertRanges.PositionsAlerts = map[string]alerts.MetricRange{
		"heat_index":     {Enabled: true},
		"travel_percent": {Enabled: true},
		"profit":         {Enabled: true},
	}
	cfg.AlertRanges.PortfolioAlerts = map[string]alerts.MetricRange{
		"total_value":               {Enabled: true},
		"total_size":                {Enabled: true},
		"avg_leverage":              {Enabled: true},
		"avg_travel_percent":        {Enabled: true},
		"value_to_collateral_ratio": {Enabled: true},
		"total_heat":                {Enabled: true},
	}
	return db.SetConfigJSON(ctx, alerts.ConfigKeyThresholds, cfg)
}

func thresholdsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Export or import the threshold set",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "export [file]",
		Short: "Write the threshold snapshot JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildServices(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			data, err := s.thresholds.ExportJSON(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 0 {
				fmt.Println(string(data))
				return nil
			}
			return os.WriteFile(args[0], data, 0o644)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Reconcile thresholds against a snapshot JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildServices(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return s.thresholds.ImportJSON(cmd.Context(), data)
		},
	})

	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show monitor freshness from the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := buildServices(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			monitors := []string{
				cycle.CycleLedgerName,
				ingest.PositionLedgerName,
				ingest.PriceLedgerName,
				xcom.LedgerName,
			}
			report := make(map[string]*models.MonitorStatus, len(monitors))
			for _, name := range monitors {
				st, err := s.db.GetMonitorStatus(cmd.Context(), name)
				if err != nil {
					return err
				}
				report[name] = st
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage monitored wallets",
	}

	var privateKey string
	add := &cobra.Command{
		Use:   "add <name> <public-address>",
		Short: "Register a wallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildServices(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			return s.registry.Save(cmd.Context(), &models.Wallet{
				Name:          args[0],
				PublicAddress: args[1],
				PrivateKey:    privateKey,
			})
		},
	}
	add.Flags().StringVar(&privateKey, "private-key", "", "private key to store encrypted")

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered wallets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := buildServices(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			ws, err := s.registry.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, w := range ws {
				fmt.Printf("%s\t%s\t%.2f\n", w.Name, w.PublicAddress, w.Balance)
			}
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildServices(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()
			return s.registry.Delete(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}

func maintenanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <positions|prices|alerts|ledger|snapshots|all>",
		Short: "Clear stored data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildServices(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			target := strings.ToLower(args[0])
			clears := map[string]func(context.Context) error{
				"positions": s.db.ClearPositions,
				"prices":    s.db.ClearPrices,
				"alerts":    s.db.ClearAlerts,
				"ledger":    s.db.ClearLedger,
				"snapshots": s.db.ClearSnapshots,
			}

			if target == "all" {
				for name, fn := range clears {
					if err := fn(ctx); err != nil {
						return fmt.Errorf("clear %s: %w", name, err)
					}
				}
				s.cache.Invalidate(ctx)
				return nil
			}

			fn, ok := clears[target]
			if !ok {
				return fmt.Errorf("unknown clear target %q", target)
			}
			return fn(ctx)
		},
	}
}

func serveDashboard(ctx context.Context, addr string, s *services) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	handlers.NewDashboard(s.db).Register(mux)

	stream := handlers.NewStream(s.cache)
	stream.Start(ctx)
	mux.HandleFunc("/stream/prices", stream.Handler)

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Log.Warn("Dashboard endpoint stopped", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
