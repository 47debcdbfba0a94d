package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ingestedFileRepository implements IngestedFileRepository
type ingestedFileRepository struct {
	pool *pgxpool.Pool
}

// NewIngestedFileRepository creates a new ingested file repository
func NewIngestedFileRepository(pool *pgxpool.Pool) IngestedFileRepository {
	return &ingestedFileRepository{pool: pool}
}

func (r *ingestedFileRepository) LoadedKeys(ctx context.Context, dataset string) (map[string]bool, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT object_key FROM ingested_files WHERE dataset = $1`,
		dataset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list loaded files: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var key string
		if scanErr := rows.Scan(&key); scanErr != nil {
			return nil, fmt.Errorf("failed to scan loaded file: %w", scanErr)
		}
		keys[key] = true
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate loaded files: %w", rowsErr)
	}
	return keys, nil
}
