package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coverlake/coverlake/internal/domain"
)

// jobRunRepository implements JobRunRepository
type jobRunRepository struct {
	pool *pgxpool.Pool
}

// NewJobRunRepository creates a new job run repository
func NewJobRunRepository(pool *pgxpool.Pool) JobRunRepository {
	return &jobRunRepository{pool: pool}
}

func (r *jobRunRepository) Record(ctx context.Context, run domain.JobRun) error {
	var samplesJSON any
	if len(run.ErrorSamples) > 0 {
		encoded, err := json.Marshal(run.ErrorSamples)
		if err != nil {
			return fmt.Errorf("failed to encode error samples: %w", err)
		}
		samplesJSON = encoded
	}

	var failedStage any
	if run.FailedStage != "" {
		failedStage = string(run.FailedStage)
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO job_runs (id, job_name, dataset, started_at, ended_at, status, failed_stage,
		   rows_processed, rows_rejected, rows_filtered, error_samples)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID,
		run.JobName,
		run.Dataset,
		run.StartedAt,
		run.EndedAt,
		string(run.Status),
		failedStage,
		run.RowsProcessed,
		run.RowsRejected,
		run.RowsFiltered,
		samplesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to record job run: %w", err)
	}
	return nil
}

func (r *jobRunRepository) ListByDataset(ctx context.Context, dataset string, limit int) ([]domain.JobRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, job_name, dataset, started_at, ended_at, status, failed_stage,
		   rows_processed, rows_rejected, rows_filtered, error_samples
		 FROM job_runs
		 WHERE ($1 = '' OR dataset = $1)
		 ORDER BY started_at DESC
		 LIMIT $2`,
		dataset,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list job runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.JobRun
	for rows.Next() {
		var (
			run         domain.JobRun
			status      string
			failedStage *string
			samplesJSON []byte
		)
		if scanErr := rows.Scan(
			&run.ID,
			&run.JobName,
			&run.Dataset,
			&run.StartedAt,
			&run.EndedAt,
			&status,
			&failedStage,
			&run.RowsProcessed,
			&run.RowsRejected,
			&run.RowsFiltered,
			&samplesJSON,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", scanErr)
		}
		run.Status = domain.RunStatus(status)
		if failedStage != nil {
			run.FailedStage = domain.Stage(*failedStage)
		}
		if len(samplesJSON) > 0 {
			if err := json.Unmarshal(samplesJSON, &run.ErrorSamples); err != nil {
				return nil, fmt.Errorf("failed to decode error samples: %w", err)
			}
		}
		runs = append(runs, run)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate job runs: %w", rowsErr)
	}
	return runs, nil
}
