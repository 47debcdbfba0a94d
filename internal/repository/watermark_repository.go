package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coverlake/coverlake/internal/domain"
)

// watermarkRepository implements WatermarkRepository
type watermarkRepository struct {
	pool *pgxpool.Pool
}

// NewWatermarkRepository creates a new watermark repository
func NewWatermarkRepository(pool *pgxpool.Pool) WatermarkRepository {
	return &watermarkRepository{pool: pool}
}

func (r *watermarkRepository) Get(ctx context.Context, dataset string, transition domain.Transition) (domain.Watermark, error) {
	mark := domain.Watermark{Dataset: dataset, Transition: transition}
	err := r.pool.QueryRow(
		ctx,
		`SELECT value, updated_at FROM watermarks WHERE dataset = $1 AND transition = $2`,
		dataset,
		string(transition),
	).Scan(&mark.Value, &mark.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Never advanced yet; zero value means process from the start.
			return mark, nil
		}
		return domain.Watermark{}, fmt.Errorf("failed to get watermark: %w", err)
	}
	return mark, nil
}

func (r *watermarkRepository) Advance(ctx context.Context, dataset string, transition domain.Transition, value int64) error {
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO watermarks (dataset, transition, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (dataset, transition)
		 DO UPDATE SET value = GREATEST(watermarks.value, EXCLUDED.value), updated_at = now()`,
		dataset,
		string(transition),
		value,
	)
	if err != nil {
		return fmt.Errorf("failed to advance watermark: %w", err)
	}
	return nil
}
