package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/coverlake/coverlake/internal/config"
	"github.com/coverlake/coverlake/internal/curated"
	"github.com/coverlake/coverlake/internal/db"
	"github.com/coverlake/coverlake/internal/ingestion"
	"github.com/coverlake/coverlake/internal/landing"
	"github.com/coverlake/coverlake/internal/orchestrator"
	"github.com/coverlake/coverlake/internal/repository"
	"github.com/coverlake/coverlake/internal/schema"
	"github.com/coverlake/coverlake/internal/transform"
)

// app wires the configured engine together for one command invocation.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	conn     *db.Connection
	registry *schema.Registry

	runRepo repository.JobRunRepository
	wmRepo  repository.WatermarkRepository
	rejRepo repository.RejectionLogRepository
	curRepo repository.CuratedRepository

	orch *orchestrator.Orchestrator
}

func newApp(ctx context.Context, log *slog.Logger) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	conn, err := db.NewConnection(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}

	store, err := newLandingStore(ctx, cfg.Landing)
	if err != nil {
		conn.Close()
		return nil, err
	}

	registry := schema.NewDefaultRegistry()
	clock := clockwork.NewRealClock()

	rawRepo := repository.NewRawRecordRepository(conn)
	fileRepo := repository.NewIngestedFileRepository(conn.Pool)
	rejRepo := repository.NewRejectionLogRepository(conn.Pool)
	stagingRepo := repository.NewStagingRepository(conn)
	wmRepo := repository.NewWatermarkRepository(conn.Pool)
	curRepo := repository.NewCuratedRepository(conn)
	runRepo := repository.NewJobRunRepository(conn.Pool)

	loader := ingestion.NewLoader(registry, rawRepo, fileRepo, rejRepo, store, log, clock, cfg.IngestOptions())

	premiumFloor, err := cfg.PremiumFloor()
	if err != nil {
		conn.Close()
		return nil, err
	}
	claimFloor, err := cfg.ClaimFloor()
	if err != nil {
		conn.Close()
		return nil, err
	}
	engine := transform.NewEngine(rawRepo, stagingRepo, wmRepo, log, clock, transform.Config{
		PremiumFloor: premiumFloor,
		ClaimFloor:   claimFloor,
		Workers:      cfg.Transform.Workers,
	})

	aggregator := curated.NewAggregator(stagingRepo, curRepo, log, clock, curated.Config{
		FraudThreshold:   cfg.Curated.FraudThreshold,
		LocationDecimals: cfg.Curated.LocationDecimals,
	})

	orch := orchestrator.New(loader, engine, aggregator, runRepo, wmRepo, rawRepo, log, clock, orchestrator.Config{
		StageTimeout:  cfg.Run.StageTimeout,
		RetryMax:      cfg.Run.RetryMax,
		RetryInterval: cfg.Run.RetryInterval,
	})

	return &app{
		cfg:      cfg,
		log:      log,
		conn:     conn,
		registry: registry,
		runRepo:  runRepo,
		wmRepo:   wmRepo,
		rejRepo:  rejRepo,
		curRepo:  curRepo,
		orch:     orch,
	}, nil
}

func (a *app) close() {
	a.conn.Close()
}

func newLandingStore(ctx context.Context, cfg config.LandingConfig) (landing.Store, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		return landing.NewLocalStore(cfg.LocalRoot), nil
	case config.BackendS3:
		return landing.NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown landing backend %q", cfg.Backend)
	}
}
