package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the shared application logger. InitLogger must be called once at
// startup before any package uses it; tests may call InitLogger repeatedly.
var Log *zap.Logger

// InitLogger configures the global zap logger. Output is JSON to stdout;
// LOG_LEVEL selects the minimum level (debug, info, warn, error).
func InitLogger() {
	level := zapcore.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := zapcore.ParseLevel(raw); err == nil {
			level = parsed
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var err error
	Log, err = cfg.Build()
	if err != nil {
		// Logger construction only fails on bad config; fall back to a
		// no-op logger rather than crash the monitor.
		Log = zap.NewNop()
	}
}

func init() {
	if Log == nil {
		Log = zap.NewNop()
	}
}
