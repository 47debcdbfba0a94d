// Package transform derives the STAGING layer from new VALID raw rows,
// gated by the RAW→STAGING watermark so each batch is processed exactly once.
package transform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/coverlake/coverlake/internal/domain"
	"github.com/coverlake/coverlake/internal/metrics"
	"github.com/coverlake/coverlake/internal/repository"
	"github.com/coverlake/coverlake/internal/schema"
)

// Config holds the transform filters and worker settings.
type Config struct {
	// PremiumFloor drops policies whose monthly premium is not strictly above
	// it. ClaimFloor drops claims whose amount is below it.
	PremiumFloor decimal.Decimal
	ClaimFloor   decimal.Decimal
	Workers      int
}

// DefaultConfig returns the standard filters: premium > 0, claim amount >= 0.
func DefaultConfig() Config {
	return Config{
		PremiumFloor: decimal.Zero,
		ClaimFloor:   decimal.Zero,
		Workers:      4,
	}
}

// Result reports one transform batch.
type Result struct {
	RowsIn       int `json:"rows_in"`
	RowsOut      int `json:"rows_out"`
	RowsFiltered int `json:"rows_filtered"`
}

// Engine reads VALID raw rows past the watermark and writes staging rows.
type Engine struct {
	rawRepo     repository.RawRecordRepository
	stagingRepo repository.StagingRepository
	wmRepo      repository.WatermarkRepository
	log         *slog.Logger
	clock       clockwork.Clock
	cfg         Config

	policyPool pond.ResultPool[policyOutcome]
	claimPool  pond.ResultPool[claimOutcome]
}

type policyOutcome struct {
	policy domain.StagingPolicy
	kept   bool
	err    error
}

type claimOutcome struct {
	claim domain.StagingClaim
	kept  bool
	err   error
}

// NewEngine creates a transform engine.
func NewEngine(
	rawRepo repository.RawRecordRepository,
	stagingRepo repository.StagingRepository,
	wmRepo repository.WatermarkRepository,
	log *slog.Logger,
	clock clockwork.Clock,
	cfg Config,
) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Engine{
		rawRepo:     rawRepo,
		stagingRepo: stagingRepo,
		wmRepo:      wmRepo,
		log:         log,
		clock:       clock,
		cfg:         cfg,
		policyPool:  pond.NewResultPool[policyOutcome](cfg.Workers),
		claimPool:   pond.NewResultPool[claimOutcome](cfg.Workers),
	}
}

// Transform processes every VALID raw row newer than the current watermark
// for the dataset. The staging batch and the watermark advance commit as one
// unit of work, so a failed batch leaves the watermark unchanged and the
// whole batch is retried on the next call.
func (e *Engine) Transform(ctx context.Context, dataset string) (Result, error) {
	switch dataset {
	case schema.PoliciesDataset, schema.ClaimsDataset:
	default:
		return Result{}, fmt.Errorf("%w: %s", schema.ErrUnknownDataset, dataset)
	}

	start := e.clock.Now()

	mark, err := e.wmRepo.Get(ctx, dataset, domain.TransitionRawToStaging)
	if err != nil {
		return Result{}, err
	}

	records, err := e.rawRepo.ListValidAfter(ctx, dataset, mark.Value)
	if err != nil {
		return Result{}, err
	}
	if len(records) == 0 {
		return Result{}, nil
	}

	var result Result
	result.RowsIn = len(records)
	newValue := records[len(records)-1].Seq

	switch dataset {
	case schema.PoliciesDataset:
		result, err = e.transformPolicies(ctx, records, newValue)
	case schema.ClaimsDataset:
		result, err = e.transformClaims(ctx, records, newValue)
	}
	if err != nil {
		return Result{}, err
	}

	metrics.RowsFiltered.WithLabelValues(dataset).Add(float64(result.RowsFiltered))
	metrics.TransformDuration.WithLabelValues(dataset).Observe(e.clock.Since(start).Seconds())
	metrics.WatermarkSeq.WithLabelValues(dataset).Set(float64(newValue))

	e.log.Info("transform batch committed",
		"dataset", dataset,
		"rows_in", result.RowsIn,
		"rows_out", result.RowsOut,
		"rows_filtered", result.RowsFiltered,
		"watermark", newValue)

	return result, nil
}

func (e *Engine) transformPolicies(ctx context.Context, records []domain.RawRecord, newValue int64) (Result, error) {
	now := e.clock.Now()
	group := e.policyPool.NewGroupContext(ctx)

	for _, record := range records {
		record := record
		group.SubmitErr(func() (policyOutcome, error) {
			policy, kept, err := buildPolicy(record, e.cfg.PremiumFloor, now)
			return policyOutcome{policy: policy, kept: kept, err: err}, nil
		})
	}

	outcomes, err := group.Wait()
	if err != nil {
		return Result{}, fmt.Errorf("failed to transform policy rows: %w", err)
	}

	result := Result{RowsIn: len(records)}
	policies := make([]domain.StagingPolicy, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.err != nil {
			// VALID raw rows should always normalize; a failure here means
			// the registered schema and the transform rules disagree. Drop
			// the row rather than fail the batch, and make it visible.
			e.log.Warn("failed to normalize valid raw row", "error", outcome.err)
			result.RowsFiltered++
			continue
		}
		if !outcome.kept {
			result.RowsFiltered++
			continue
		}
		policies = append(policies, outcome.policy)
	}

	mark := domain.Watermark{
		Dataset:    schema.PoliciesDataset,
		Transition: domain.TransitionRawToStaging,
		Value:      newValue,
	}
	if err := e.stagingRepo.CommitPolicies(ctx, policies, mark); err != nil {
		return Result{}, err
	}

	result.RowsOut = len(policies)
	return result, nil
}

func (e *Engine) transformClaims(ctx context.Context, records []domain.RawRecord, newValue int64) (Result, error) {
	now := e.clock.Now()
	group := e.claimPool.NewGroupContext(ctx)

	for _, record := range records {
		record := record
		group.SubmitErr(func() (claimOutcome, error) {
			claim, kept, err := buildClaim(record, e.cfg.ClaimFloor, now)
			return claimOutcome{claim: claim, kept: kept, err: err}, nil
		})
	}

	outcomes, err := group.Wait()
	if err != nil {
		return Result{}, fmt.Errorf("failed to transform claim rows: %w", err)
	}

	result := Result{RowsIn: len(records)}
	claims := make([]domain.StagingClaim, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.err != nil {
			e.log.Warn("failed to normalize valid raw row", "error", outcome.err)
			result.RowsFiltered++
			continue
		}
		if !outcome.kept {
			result.RowsFiltered++
			continue
		}
		claims = append(claims, outcome.claim)
	}

	mark := domain.Watermark{
		Dataset:    schema.ClaimsDataset,
		Transition: domain.TransitionRawToStaging,
		Value:      newValue,
	}
	if err := e.stagingRepo.CommitClaims(ctx, claims, mark); err != nil {
		return Result{}, err
	}

	result.RowsOut = len(claims)
	return result, nil
}
