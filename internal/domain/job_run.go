package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the terminal outcome of a pipeline job.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
	// RunStatusPartial marks a run that completed every stage but rejected or
	// filtered rows along the way. Operators treat the counts as a routine
	// health signal rather than a failure.
	RunStatusPartial RunStatus = "PARTIAL"
)

// Stage names the pipeline stages a run moves through.
type Stage string

const (
	StageIngest    Stage = "ingest"
	StageTransform Stage = "transform"
	StageAggregate Stage = "aggregate"
)

// MaxErrorSamples bounds how many row-level error messages a job run retains.
const MaxErrorSamples = 10

// JobRun is one append-only audit record of a pipeline run or a standalone
// recompute.
type JobRun struct {
	ID            uuid.UUID `json:"id"`
	JobName       string    `json:"job_name"`
	Dataset       string    `json:"dataset"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	Status        RunStatus `json:"status"`
	FailedStage   Stage     `json:"failed_stage,omitempty"`
	RowsProcessed int       `json:"rows_processed"`
	RowsRejected  int       `json:"rows_rejected"`
	RowsFiltered  int       `json:"rows_filtered"`
	ErrorSamples  []string  `json:"error_samples,omitempty"`
}
