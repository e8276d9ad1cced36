// Package app wires the ledgerd runtime: storage, the change ledger, the
// compaction service, background schedulers, and a gRPC health endpoint.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/codetrail/codetrail/internal/compaction"
	"github.com/codetrail/codetrail/internal/ledger"
	"github.com/codetrail/codetrail/internal/ledger/storage"
	bboltstore "github.com/codetrail/codetrail/internal/ledger/storage/bbolt"
	sqlitestore "github.com/codetrail/codetrail/internal/ledger/storage/sqlite"
)

// RuntimeConfig controls ledgerd startup, storage, and loop cadence.
type RuntimeConfig struct {
	Port    int
	Backend string
	DBPath  string

	FlushInterval time.Duration
	MaxBatchSize  int
	RetentionDays int

	SessionTimeout      time.Duration
	MinEventsForCompact int
	CompactBatchSize    int
	AutoCompactInterval time.Duration
	RetentionInterval   time.Duration
}

const (
	defaultPort              = 8094
	defaultDBPath            = "data/ledger.db"
	defaultRetentionInterval = 6 * time.Hour

	// BackendSQLite and BackendBBolt are the supported storage backends.
	BackendSQLite = "sqlite"
	BackendBBolt  = "bbolt"
)

// Run starts ledgerd dependencies and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.RetentionInterval <= 0 {
		cfg.RetentionInterval = defaultRetentionInterval
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger storage dir: %w", err)
		}
	}

	store, err := openStore(cfg.Backend, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close ledger store: %v", closeErr)
		}
	}()

	changeLedger := ledger.New(store, ledger.Config{
		FlushInterval: cfg.FlushInterval,
		MaxBatchSize:  cfg.MaxBatchSize,
		RetentionDays: cfg.RetentionDays,
	})
	if err := changeLedger.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize ledger: %w", err)
	}

	compactor := compaction.New(changeLedger, store, nil, compaction.Config{
		SessionTimeout:         cfg.SessionTimeout,
		MinEventsForCompaction: cfg.MinEventsForCompact,
		BatchSize:              cfg.CompactBatchSize,
		AutoInterval:           cfg.AutoCompactInterval,
	})
	compactor.StartAutoCompaction()

	retentionStop := make(chan struct{})
	retentionDone := make(chan struct{})
	go retentionLoop(changeLedger, cfg.RetentionInterval, retentionStop, retentionDone)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on ledgerd port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("ledgerd.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("ledgerd listening at %v (%s backend)", listener.Addr(), backendName(cfg.Backend))
	<-ctx.Done()

	close(retentionStop)
	<-retentionDone

	// Drain order: final compaction pass first, then ledger flush.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := compactor.Shutdown(shutdownCtx); err != nil {
		log.Printf("compaction shutdown: %v", err)
	}
	if err := changeLedger.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ledger shutdown: %w", err)
	}
	return nil
}

func openStore(backend, path string) (storage.Store, error) {
	switch backendName(backend) {
	case BackendBBolt:
		store, err := bboltstore.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open bbolt store: %w", err)
		}
		return store, nil
	case BackendSQLite:
		store, err := sqlitestore.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

func backendName(backend string) string {
	normalized := strings.ToLower(strings.TrimSpace(backend))
	if normalized == "" {
		return BackendSQLite
	}
	return normalized
}

// retentionLoop prunes expired raw entries on a fixed cadence.
func retentionLoop(l *ledger.Ledger, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := l.PruneExpired(context.Background()); err != nil {
				log.Printf("scheduled retention prune: %v", err)
			}
		case <-stop:
			return
		}
	}
}
