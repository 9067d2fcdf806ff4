package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	ledgerservice "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service"
	ledgerpostgres "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/adapters/postgres"
	milestoneescrow "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow"
	escrowpostgres "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/adapters/postgres"
	poollifecycle "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/adapters/policyfile"
	lifecyclepostgres "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/adapters/postgres"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/application/workers"
	votingengine "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine"
	votingpostgres "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/adapters/postgres"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/platform/config"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/platform/db"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/platform/httpserver"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/platform/identity"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/platform/messaging"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/platform/settlement"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	outboxRelay  workers.OutboxRelay
	closer       workers.DeadlineCloser
	enableRelay  bool
	enableCloser bool
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	engine, pg, err := buildEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(engine, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	engine, pg, err := buildEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	return &WorkerApp{
		postgres: pg,
		outboxRelay: workers.OutboxRelay{
			Outbox:    engine.Service.Outbox,
			Publisher: messaging.TopicPublisher{Bus: kafka, Topic: cfg.EventTopic},
			Clock:     engine.Service.Clock,
			BatchSize: cfg.OutboxBatchSize,
			Interval:  cfg.OutboxRelayInterval,
			Logger:    logger,
		},
		closer: workers.DeadlineCloser{
			Pools:      engine.Service.Pools,
			Controller: engine.Service,
			Clock:      engine.Service.Clock,
			Interval:   cfg.DeadlineCloseInterval,
			Logger:     logger,
		},
		enableRelay:  cfg.EnableOutboxRelay,
		enableCloser: cfg.EnableDeadlineCloser,
		logger:       logger,
	}, nil
}

// buildEngine assembles the four pool-engine modules behind one lifecycle
// controller. With a Postgres DSN the repositories are database-backed;
// without one the engine runs fully in memory for local development.
func buildEngine(cfg config.Config, logger *slog.Logger) (poollifecycle.Module, *db.Postgres, error) {
	policies, err := policyfile.Load(cfg.PolicyFile)
	if err != nil {
		return poollifecycle.Module{}, nil, err
	}

	rail := settlement.NewRail(logger)

	var engine poollifecycle.Module
	var pg *db.Postgres
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		engine = poollifecycle.NewInMemoryModule(policies, logger)
		engine.Service.Rail = rail
	} else {
		pg, err = db.Connect(cfg.PostgresDSN)
		if err != nil {
			return poollifecycle.Module{}, nil, err
		}

		lifecycleRepo := lifecyclepostgres.NewRepository(pg.DB, logger)
		engine = poollifecycle.NewModule(poollifecycle.Dependencies{
			Pools:  lifecycleRepo,
			Outbox: lifecycleRepo,
			Ledger: ledgerservice.NewModule(ledgerservice.Dependencies{
				Ledger: ledgerpostgres.NewRepository(pg.DB, logger),
				Clock:  ledgerpostgres.SystemClock{},
				IDGen:  ledgerpostgres.UUIDGenerator{},
				Logger: logger,
			}),
			Voting: votingengine.NewModule(votingengine.Dependencies{
				Votes:  votingpostgres.NewRepository(pg.DB, logger),
				Clock:  votingpostgres.SystemClock{},
				IDGen:  votingpostgres.UUIDGenerator{},
				Logger: logger,
			}),
			Escrow: milestoneescrow.NewModule(milestoneescrow.Dependencies{
				Milestones: escrowpostgres.NewRepository(pg.DB, logger),
				Clock:      escrowpostgres.SystemClock{},
				IDGen:      escrowpostgres.UUIDGenerator{},
				Logger:     logger,
			}),
			Rail:     rail,
			Policies: policies,
			UoW:      db.NewTxManager(pg.DB),
			Clock:    lifecyclepostgres.SystemClock{},
			IDGen:    lifecyclepostgres.UUIDGenerator{},
			Logger:   logger,
		})
	}

	if strings.TrimSpace(cfg.JWTSecret) != "" {
		verifier, err := identity.NewVerifier(cfg.JWTSecret, logger)
		if err != nil {
			return poollifecycle.Module{}, nil, err
		}
		engine.Service.Identity = verifier
	}
	return engine, pg, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if !w.enableRelay && !w.enableCloser {
		return errors.New("no workers enabled")
	}

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"outbox_relay", w.enableRelay,
		"deadline_closer", w.enableCloser,
	)

	errCh := make(chan error, 2)
	if w.enableRelay {
		go func() { errCh <- w.outboxRelay.Run(ctx) }()
	}
	if w.enableCloser {
		go func() { errCh <- w.closer.Run(ctx) }()
	}

	err := <-errCh
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
