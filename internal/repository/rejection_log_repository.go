package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coverlake/coverlake/internal/domain"
)

// rejectionLogRepository implements RejectionLogRepository
type rejectionLogRepository struct {
	pool *pgxpool.Pool
}

// NewRejectionLogRepository creates a new rejection log repository
func NewRejectionLogRepository(pool *pgxpool.Pool) RejectionLogRepository {
	return &rejectionLogRepository{pool: pool}
}

func (r *rejectionLogRepository) Record(ctx context.Context, entry domain.RejectionEntry) error {
	var rowNumber any
	if entry.RowNumber != nil {
		rowNumber = *entry.RowNumber
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO rejection_log (id, dataset, source_file, row_number, reason)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID,
		entry.Dataset,
		entry.SourceFile,
		rowNumber,
		entry.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to record rejection: %w", err)
	}
	return nil
}

func (r *rejectionLogRepository) List(ctx context.Context, dataset string, limit int) ([]domain.RejectionEntry, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, dataset, source_file, row_number, reason, created_at
		 FROM rejection_log
		 WHERE ($1 = '' OR dataset = $1)
		 ORDER BY created_at DESC
		 LIMIT $2`,
		dataset,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rejections: %w", err)
	}
	defer rows.Close()

	entries := []domain.RejectionEntry{}
	for rows.Next() {
		var (
			entry     domain.RejectionEntry
			rowNumber pgtype.Int4
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.Dataset,
			&entry.SourceFile,
			&rowNumber,
			&entry.Reason,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan rejection: %w", scanErr)
		}
		if rowNumber.Valid {
			value := int(rowNumber.Int32)
			entry.RowNumber = &value
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}
		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate rejections: %w", rowsErr)
	}
	return entries, nil
}
