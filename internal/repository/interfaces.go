package repository

import (
	"context"
	"time"

	"github.com/coverlake/coverlake/internal/domain"
)

// RawRecordRepository defines the interface for the append-only RAW layer
type RawRecordRepository interface {
	// CommitFile persists a parsed file's rows, valid and rejected alike,
	// together with the loaded-file mark in a single unit of work. The store
	// assigns each record a monotonically increasing sequence number. A
	// failed commit leaves no trace of the file, so a retried ingest appends
	// its rows exactly once.
	CommitFile(ctx context.Context, dataset, sourceFile string, records []domain.RawRecord, loadedAt time.Time) error
	// ListValidAfter returns VALID records with sequence number greater than
	// afterSeq, in sequence order.
	ListValidAfter(ctx context.Context, dataset string, afterSeq int64) ([]domain.RawRecord, error)
	// MaxSeq returns the highest assigned sequence number for the dataset,
	// zero when the dataset has no rows.
	MaxSeq(ctx context.Context, dataset string) (int64, error)
	CountByStatus(ctx context.Context, dataset string) (valid int64, rejected int64, err error)
}

// StagingRepository defines the interface for the STAGING layer. Commit
// methods write the batch and advance the RAW→STAGING watermark in a single
// unit of work, so a partial failure leaves the watermark untouched and the
// batch can be retried in full.
type StagingRepository interface {
	CommitPolicies(ctx context.Context, policies []domain.StagingPolicy, mark domain.Watermark) error
	CommitClaims(ctx context.Context, claims []domain.StagingClaim, mark domain.Watermark) error
	ListPolicies(ctx context.Context) ([]domain.StagingPolicy, error)
	ListClaims(ctx context.Context) ([]domain.StagingClaim, error)
}

// WatermarkRepository reads and advances the per (dataset, transition)
// progress pointers. Advance never moves a watermark backwards.
type WatermarkRepository interface {
	Get(ctx context.Context, dataset string, transition domain.Transition) (domain.Watermark, error)
	Advance(ctx context.Context, dataset string, transition domain.Transition, value int64) error
}

// CuratedRepository replaces and reads the derived analytic tables. Replace
// semantics keep recompute idempotent: dropping and recomputing from current
// STAGING yields identical contents.
type CuratedRepository interface {
	ReplaceLossRatios(ctx context.Context, rows []domain.LossRatioRow) error
	ReplaceFraudFlags(ctx context.Context, rows []domain.FraudFlagRow) error
	ReplaceSolvency(ctx context.Context, rows []domain.SolvencyRow) error
	ListLossRatios(ctx context.Context) ([]domain.LossRatioRow, error)
	ListFraudFlags(ctx context.Context) ([]domain.FraudFlagRow, error)
	ListSolvency(ctx context.Context) ([]domain.SolvencyRow, error)
}

// JobRunRepository stores the append-only pipeline audit log.
type JobRunRepository interface {
	Record(ctx context.Context, run domain.JobRun) error
	ListByDataset(ctx context.Context, dataset string, limit int) ([]domain.JobRun, error)
}

// RejectionLogRepository stores row level ingestion problems for
// observability.
type RejectionLogRepository interface {
	Record(ctx context.Context, entry domain.RejectionEntry) error
	List(ctx context.Context, dataset string, limit int) ([]domain.RejectionEntry, error)
}

// IngestedFileRepository reads which landed objects have already been loaded
// so re-listing the landing store never double-ingests a file. The mark
// itself is written by RawRecordRepository.CommitFile alongside the rows.
type IngestedFileRepository interface {
	LoadedKeys(ctx context.Context, dataset string) (map[string]bool, error)
}
