package bootstrap

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	electionmachine "ballotbox/contexts/election-core/election-machine"
	electionpostgres "ballotbox/contexts/election-core/election-machine/adapters/postgres"
	electionworkers "ballotbox/contexts/election-core/election-machine/application/workers"
	"ballotbox/contexts/election-core/election-machine/ports"
	"ballotbox/internal/platform/config"
	"ballotbox/internal/platform/db"
	"ballotbox/internal/platform/httpserver"
	"ballotbox/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres      *db.Postgres
	outboxRelay   electionworkers.OutboxRelay
	windowWatcher *electionworkers.WindowWatcher
	pollInterval  time.Duration
	watchWindows  bool
	logger        *slog.Logger
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type uuidGenerator struct{}

func (uuidGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")

	module, pg, err := buildElectionModule(cfg, logger)
	if err != nil {
		return nil, err
	}
	server := httpserver.New(module, logger, ":"+cfg.HTTPPort)
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func (a *APIApp) Run() error {
	return a.server.Start()
}

func (a *APIApp) Close() error {
	return a.postgres.Close()
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")

	module, pg, err := buildElectionModule(cfg, logger)
	if err != nil {
		return nil, err
	}
	bus, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	var repo interface {
		ports.ElectionRepository
		ports.OutboxWriter
		ports.OutboxRepository
	}
	if pg != nil {
		repo = electionpostgres.NewRepository(pg.DB, logger)
	} else {
		repo = module.Store
	}

	return &WorkerApp{
		postgres: pg,
		outboxRelay: electionworkers.OutboxRelay{
			Outbox:    repo,
			Publisher: bus,
			Clock:     systemClock{},
			BatchSize: cfg.OutboxBatchSize,
			Logger:    logger,
		},
		windowWatcher: &electionworkers.WindowWatcher{
			Elections: repo,
			Outbox:    repo,
			Clock:     systemClock{},
			Logger:    logger,
		},
		pollInterval: cfg.WorkerPollInterval,
		watchWindows: cfg.EnableWindowWatcher,
		logger:       logger,
	}, nil
}

// Run drives the worker loops until the context is cancelled. Each cycle is
// independent; a failed cycle is logged by the worker and retried on the next
// tick.
func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if w.watchWindows {
				_ = w.windowWatcher.RunOnce(ctx)
			}
			_ = w.outboxRelay.RunOnce(ctx)
		}
	}
}

func (w *WorkerApp) Close() error {
	return w.postgres.Close()
}

func buildElectionModule(cfg config.Config, logger *slog.Logger) (electionmachine.Module, *db.Postgres, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		logger.Warn("POSTGRES_DSN not set; using in-memory store",
			"event", "bootstrap_memory_fallback",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		return electionmachine.NewInMemoryModule(nil, logger), nil, nil
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return electionmachine.Module{}, nil, err
	}
	repo := electionpostgres.NewRepository(pg.DB, logger)
	module := electionmachine.NewModule(electionmachine.Dependencies{
		Elections: repo,
		Outbox:    repo,
		Clock:     systemClock{},
		IDGen:     uuidGenerator{},
		Logger:    logger,
	})
	return module, pg, nil
}
