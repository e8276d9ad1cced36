// Package ledgerd parses ledgerd command flags and launches the runtime.
package ledgerd

import (
	"context"
	"flag"
	"time"

	"github.com/codetrail/codetrail/internal/app"
	entrypoint "github.com/codetrail/codetrail/internal/platform/cmd"
)

// Config holds ledgerd command configuration.
type Config struct {
	Port    int    `env:"CODETRAIL_LEDGER_PORT" envDefault:"8094"`
	Backend string `env:"CODETRAIL_STORE_BACKEND" envDefault:"sqlite"`
	DBPath  string `env:"CODETRAIL_LEDGER_DB_PATH" envDefault:"data/ledger.db"`

	FlushInterval time.Duration `env:"CODETRAIL_LEDGER_FLUSH_INTERVAL" envDefault:"5s"`
	MaxBatchSize  int           `env:"CODETRAIL_LEDGER_MAX_BATCH" envDefault:"100"`
	RetentionDays int           `env:"CODETRAIL_LEDGER_RETENTION_DAYS" envDefault:"30"`

	SessionTimeout      time.Duration `env:"CODETRAIL_COMPACTION_SESSION_TIMEOUT" envDefault:"30m"`
	MinEventsForCompact int           `env:"CODETRAIL_COMPACTION_MIN_EVENTS" envDefault:"10"`
	CompactBatchSize    int           `env:"CODETRAIL_COMPACTION_BATCH_SIZE" envDefault:"500"`
	AutoCompactInterval time.Duration `env:"CODETRAIL_COMPACTION_AUTO_INTERVAL" envDefault:"1h"`
	RetentionInterval   time.Duration `env:"CODETRAIL_RETENTION_INTERVAL" envDefault:"6h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The ledgerd health gRPC server port")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Storage backend (sqlite or bbolt)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The ledger database path")
	fs.DurationVar(&cfg.FlushInterval, "flush-interval", cfg.FlushInterval, "Ledger buffer flush interval")
	fs.IntVar(&cfg.MaxBatchSize, "max-batch", cfg.MaxBatchSize, "Ledger buffer size triggering an inline flush")
	fs.IntVar(&cfg.RetentionDays, "retention-days", cfg.RetentionDays, "Days raw entries are retained")
	fs.DurationVar(&cfg.SessionTimeout, "session-timeout", cfg.SessionTimeout, "Idle gap splitting work sessions")
	fs.IntVar(&cfg.MinEventsForCompact, "min-events", cfg.MinEventsForCompact, "Batch floor for a compaction pass")
	fs.IntVar(&cfg.CompactBatchSize, "compact-batch", cfg.CompactBatchSize, "Entries fetched per compaction pass")
	fs.DurationVar(&cfg.AutoCompactInterval, "auto-compact-interval", cfg.AutoCompactInterval, "Auto-compaction cadence")
	fs.DurationVar(&cfg.RetentionInterval, "retention-interval", cfg.RetentionInterval, "Retention pruning cadence")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the ledgerd runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLedgerd, func(context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			Port:                cfg.Port,
			Backend:             cfg.Backend,
			DBPath:              cfg.DBPath,
			FlushInterval:       cfg.FlushInterval,
			MaxBatchSize:        cfg.MaxBatchSize,
			RetentionDays:       cfg.RetentionDays,
			SessionTimeout:      cfg.SessionTimeout,
			MinEventsForCompact: cfg.MinEventsForCompact,
			CompactBatchSize:    cfg.CompactBatchSize,
			AutoCompactInterval: cfg.AutoCompactInterval,
			RetentionInterval:   cfg.RetentionInterval,
		})
	})
}
