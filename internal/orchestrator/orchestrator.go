// Package orchestrator sequences the pipeline stages for a dataset:
// ingest into RAW, transform into STAGING, then recompute the curated tables.
// Each run is recorded in the append-only job run log.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/coverlake/coverlake/internal/curated"
	"github.com/coverlake/coverlake/internal/domain"
	"github.com/coverlake/coverlake/internal/ingestion"
	"github.com/coverlake/coverlake/internal/metrics"
	"github.com/coverlake/coverlake/internal/repository"
	"github.com/coverlake/coverlake/internal/schema"
	"github.com/coverlake/coverlake/internal/transform"
)

// ErrRunInProgress is returned when a run is requested for a dataset that
// already has an active run.
var ErrRunInProgress = errors.New("run already in progress for dataset")

// Ingester loads landed files for a dataset into the RAW layer.
type Ingester interface {
	IngestDataset(ctx context.Context, dataset string) (ingestion.Result, error)
}

// Transformer derives STAGING rows from new RAW rows.
type Transformer interface {
	Transform(ctx context.Context, dataset string) (transform.Result, error)
}

// Aggregator rebuilds the curated tables.
type Aggregator interface {
	RecomputeAll(ctx context.Context) ([]domain.CuratedResult, error)
	Recompute(ctx context.Context, table string) (domain.CuratedResult, error)
}

// Config holds per-stage timeouts and retry settings.
type Config struct {
	StageTimeout  time.Duration
	RetryMax      uint64
	RetryInterval time.Duration
}

// DefaultConfig returns the standard orchestration settings.
func DefaultConfig() Config {
	return Config{
		StageTimeout:  10 * time.Minute,
		RetryMax:      2,
		RetryInterval: 2 * time.Second,
	}
}

// Orchestrator drives full pipeline runs and standalone recomputes.
type Orchestrator struct {
	ingester   Ingester
	transform  Transformer
	aggregator Aggregator
	runRepo    repository.JobRunRepository
	wmRepo     repository.WatermarkRepository
	rawRepo    repository.RawRecordRepository
	log        *slog.Logger
	clock      clockwork.Clock
	cfg        Config

	mu     sync.Mutex
	active map[string]bool

	// aggMu serializes curated recomputes. The curated tables are shared
	// across datasets, and two concurrent replaces of the same table collide
	// on its primary key.
	aggMu sync.Mutex
}

// New creates an orchestrator.
func New(
	ingester Ingester,
	transformer Transformer,
	aggregator Aggregator,
	runRepo repository.JobRunRepository,
	wmRepo repository.WatermarkRepository,
	rawRepo repository.RawRecordRepository,
	log *slog.Logger,
	clock clockwork.Clock,
	cfg Config,
) *Orchestrator {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = DefaultConfig().StageTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultConfig().RetryInterval
	}
	return &Orchestrator{
		ingester:   ingester,
		transform:  transformer,
		aggregator: aggregator,
		runRepo:    runRepo,
		wmRepo:     wmRepo,
		rawRepo:    rawRepo,
		log:        log,
		clock:      clock,
		cfg:        cfg,
		active:     map[string]bool{},
	}
}

func (o *Orchestrator) acquire(dataset string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active[dataset] {
		return fmt.Errorf("%w: %s", ErrRunInProgress, dataset)
	}
	o.active[dataset] = true
	return nil
}

func (o *Orchestrator) release(dataset string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, dataset)
}

// Run executes the full pipeline for one dataset. At most one run per dataset
// is active at a time; a second request fails fast with ErrRunInProgress.
// Every run, successful or not, leaves a job run record behind.
func (o *Orchestrator) Run(ctx context.Context, dataset string) (domain.JobRun, error) {
	if err := o.acquire(dataset); err != nil {
		return domain.JobRun{}, err
	}
	defer o.release(dataset)

	run := domain.JobRun{
		ID:        uuid.New(),
		JobName:   "pipeline",
		Dataset:   dataset,
		StartedAt: o.clock.Now(),
		Status:    domain.RunStatusSuccess,
	}
	o.log.Info("pipeline run started", "dataset", dataset, "run_id", run.ID)

	runErr := o.runStages(ctx, dataset, &run)
	run.EndedAt = o.clock.Now()

	if runErr != nil {
		run.Status = domain.RunStatusFailed
		run.ErrorSamples = appendSample(run.ErrorSamples, runErr.Error())
	} else if run.RowsRejected > 0 || run.RowsFiltered > 0 {
		run.Status = domain.RunStatusPartial
	}

	metrics.RunsTotal.WithLabelValues(dataset, string(run.Status)).Inc()

	if err := o.runRepo.Record(ctx, run); err != nil {
		// The pipeline outcome stands even when the audit write fails.
		o.log.Error("failed to record job run", "dataset", dataset, "error", err)
	}

	o.log.Info("pipeline run finished",
		"dataset", dataset,
		"run_id", run.ID,
		"status", run.Status,
		"rows_processed", run.RowsProcessed,
		"rows_rejected", run.RowsRejected,
		"rows_filtered", run.RowsFiltered,
		"duration", run.EndedAt.Sub(run.StartedAt))

	return run, runErr
}

func (o *Orchestrator) runStages(ctx context.Context, dataset string, run *domain.JobRun) error {
	ingestResult, err := retryStage(o, ctx, func(ctx context.Context) (ingestion.Result, error) {
		return o.ingester.IngestDataset(ctx, dataset)
	})
	if err != nil {
		run.FailedStage = domain.StageIngest
		return fmt.Errorf("ingest stage failed: %w", err)
	}
	run.RowsProcessed += ingestResult.Accepted + ingestResult.Rejected
	run.RowsRejected += ingestResult.Rejected
	for _, sample := range ingestResult.Errors {
		run.ErrorSamples = appendSample(run.ErrorSamples, sample)
	}

	if err := ctx.Err(); err != nil {
		run.FailedStage = domain.StageTransform
		return fmt.Errorf("run cancelled: %w", err)
	}

	transformResult, err := retryStage(o, ctx, func(ctx context.Context) (transform.Result, error) {
		return o.transform.Transform(ctx, dataset)
	})
	if err != nil {
		run.FailedStage = domain.StageTransform
		return fmt.Errorf("transform stage failed: %w", err)
	}
	run.RowsFiltered += transformResult.RowsFiltered

	if err := ctx.Err(); err != nil {
		run.FailedStage = domain.StageAggregate
		return fmt.Errorf("run cancelled: %w", err)
	}

	o.aggMu.Lock()
	_, err = retryStage(o, ctx, func(ctx context.Context) ([]domain.CuratedResult, error) {
		return o.aggregator.RecomputeAll(ctx)
	})
	o.aggMu.Unlock()
	if err != nil {
		run.FailedStage = domain.StageAggregate
		return fmt.Errorf("aggregate stage failed: %w", err)
	}

	// Curated now reflects everything staged so far; move the
	// STAGING→CURATED pointer up to the committed RAW→STAGING position.
	// The audit outcome stands even if the bookkeeping write fails.
	mark, markErr := o.wmRepo.Get(ctx, dataset, domain.TransitionRawToStaging)
	if markErr == nil && mark.Value > 0 {
		markErr = o.wmRepo.Advance(ctx, dataset, domain.TransitionStagingToCurated, mark.Value)
	}
	if markErr != nil {
		o.log.Warn("failed to advance curated watermark", "dataset", dataset, "error", markErr)
	}

	return nil
}

// Recompute rebuilds one curated table outside a full run, recording it in
// the job run log under its own job name.
func (o *Orchestrator) Recompute(ctx context.Context, table string) (domain.CuratedResult, error) {
	run := domain.JobRun{
		ID:        uuid.New(),
		JobName:   "recompute:" + table,
		StartedAt: o.clock.Now(),
		Status:    domain.RunStatusSuccess,
	}

	o.aggMu.Lock()
	result, err := retryStage(o, ctx, func(ctx context.Context) (domain.CuratedResult, error) {
		return o.aggregator.Recompute(ctx, table)
	})
	o.aggMu.Unlock()
	run.EndedAt = o.clock.Now()
	if err != nil {
		run.Status = domain.RunStatusFailed
		run.FailedStage = domain.StageAggregate
		run.ErrorSamples = appendSample(run.ErrorSamples, err.Error())
	} else {
		run.RowsProcessed = result.Rows
	}

	if recordErr := o.runRepo.Record(ctx, run); recordErr != nil {
		o.log.Error("failed to record job run", "table", table, "error", recordErr)
	}
	return result, err
}

// DatasetStatus is the operator view of a dataset's pipeline state.
type DatasetStatus struct {
	Dataset          string           `json:"dataset"`
	Watermark        domain.Watermark `json:"watermark"`
	CuratedWatermark domain.Watermark `json:"curated_watermark"`
	MaxRawSeq        int64            `json:"max_raw_seq"`
	Backlog          int64            `json:"backlog"`
	ValidRows        int64            `json:"valid_rows"`
	RejectedRows     int64            `json:"rejected_rows"`
	RecentRuns       []domain.JobRun  `json:"recent_runs"`
	ActiveRun        bool             `json:"active_run"`
}

// Status reports the current watermark position, RAW layer counts, and the
// most recent runs for a dataset.
func (o *Orchestrator) Status(ctx context.Context, dataset string) (DatasetStatus, error) {
	mark, err := o.wmRepo.Get(ctx, dataset, domain.TransitionRawToStaging)
	if err != nil {
		return DatasetStatus{}, err
	}
	curatedMark, err := o.wmRepo.Get(ctx, dataset, domain.TransitionStagingToCurated)
	if err != nil {
		return DatasetStatus{}, err
	}
	maxSeq, err := o.rawRepo.MaxSeq(ctx, dataset)
	if err != nil {
		return DatasetStatus{}, err
	}
	valid, rejected, err := o.rawRepo.CountByStatus(ctx, dataset)
	if err != nil {
		return DatasetStatus{}, err
	}
	runs, err := o.runRepo.ListByDataset(ctx, dataset, 10)
	if err != nil {
		return DatasetStatus{}, err
	}

	o.mu.Lock()
	activeRun := o.active[dataset]
	o.mu.Unlock()

	return DatasetStatus{
		Dataset:          dataset,
		Watermark:        mark,
		CuratedWatermark: curatedMark,
		MaxRawSeq:        maxSeq,
		Backlog:          maxSeq - mark.Value,
		ValidRows:        valid,
		RejectedRows:     rejected,
		RecentRuns:       runs,
		ActiveRun:        activeRun,
	}, nil
}

// retryStage runs one stage under the stage timeout with bounded retries.
// Configuration errors such as unknown datasets or tables never retry.
func retryStage[T any](o *Orchestrator, ctx context.Context, stage func(context.Context) (T, error)) (T, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(o.cfg.RetryInterval), o.cfg.RetryMax),
		ctx,
	)
	return backoff.RetryWithData(func() (T, error) {
		stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
		defer cancel()
		result, err := stage(stageCtx)
		if err != nil {
			if errors.Is(err, schema.ErrUnknownDataset) || errors.Is(err, curated.ErrUnknownTable) {
				return result, backoff.Permanent(err)
			}
			o.log.Warn("stage attempt failed", "error", err)
		}
		return result, err
	}, policy)
}

func appendSample(samples []string, sample string) []string {
	if len(samples) >= domain.MaxErrorSamples {
		return samples
	}
	return append(samples, sample)
}
