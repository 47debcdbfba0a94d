package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/coverlake/coverlake/internal/db"
	"github.com/coverlake/coverlake/internal/domain"
)

// stagingRepository implements StagingRepository. Batch commits run inside a
// single transaction together with the watermark advance.
type stagingRepository struct {
	conn *db.Connection
}

// NewStagingRepository creates a new staging repository
func NewStagingRepository(conn *db.Connection) StagingRepository {
	return &stagingRepository{conn: conn}
}

func (r *stagingRepository) CommitPolicies(ctx context.Context, policies []domain.StagingPolicy, mark domain.Watermark) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		for _, policy := range policies {
			_, err := tx.Exec(
				ctx,
				`INSERT INTO staging_policies (id, raw_id, raw_seq, policy_id, customer_id, product_type,
				   policy_start_date, policy_end_date, monthly_premium, sum_assured,
				   insured_longitude, insured_latitude, transformed_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
				policy.ID,
				policy.RawID,
				policy.RawSeq,
				policy.PolicyID,
				policy.CustomerID,
				policy.ProductType,
				policy.StartDate,
				policy.EndDate,
				policy.MonthlyPremium,
				policy.SumAssured,
				policy.InsuredAt.Longitude,
				policy.InsuredAt.Latitude,
				policy.TransformedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert staging policy: %w", err)
			}
		}
		return advanceWatermarkTx(ctx, tx, mark)
	})
}

func (r *stagingRepository) CommitClaims(ctx context.Context, claims []domain.StagingClaim, mark domain.Watermark) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		for _, claim := range claims {
			_, err := tx.Exec(
				ctx,
				`INSERT INTO staging_claims (id, raw_id, raw_seq, claim_id, policy_id, claim_type,
				   claim_date, claim_amount, claim_status, loss_longitude, loss_latitude, transformed_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				claim.ID,
				claim.RawID,
				claim.RawSeq,
				claim.ClaimID,
				claim.PolicyID,
				claim.ClaimType,
				claim.ClaimDate,
				claim.Amount,
				claim.Status,
				claim.LossAt.Longitude,
				claim.LossAt.Latitude,
				claim.TransformedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert staging claim: %w", err)
			}
		}
		return advanceWatermarkTx(ctx, tx, mark)
	})
}

func (r *stagingRepository) ListPolicies(ctx context.Context) ([]domain.StagingPolicy, error) {
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT id, raw_id, raw_seq, policy_id, customer_id, product_type,
		   policy_start_date, policy_end_date, monthly_premium, sum_assured,
		   insured_longitude, insured_latitude, transformed_at
		 FROM staging_policies
		 ORDER BY raw_seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list staging policies: %w", err)
	}
	defer rows.Close()

	var policies []domain.StagingPolicy
	for rows.Next() {
		var policy domain.StagingPolicy
		if scanErr := rows.Scan(
			&policy.ID,
			&policy.RawID,
			&policy.RawSeq,
			&policy.PolicyID,
			&policy.CustomerID,
			&policy.ProductType,
			&policy.StartDate,
			&policy.EndDate,
			&policy.MonthlyPremium,
			&policy.SumAssured,
			&policy.InsuredAt.Longitude,
			&policy.InsuredAt.Latitude,
			&policy.TransformedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan staging policy: %w", scanErr)
		}
		policies = append(policies, policy)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate staging policies: %w", rowsErr)
	}
	return policies, nil
}

func (r *stagingRepository) ListClaims(ctx context.Context) ([]domain.StagingClaim, error) {
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT id, raw_id, raw_seq, claim_id, policy_id, claim_type,
		   claim_date, claim_amount, claim_status, loss_longitude, loss_latitude, transformed_at
		 FROM staging_claims
		 ORDER BY raw_seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list staging claims: %w", err)
	}
	defer rows.Close()

	var claims []domain.StagingClaim
	for rows.Next() {
		var claim domain.StagingClaim
		if scanErr := rows.Scan(
			&claim.ID,
			&claim.RawID,
			&claim.RawSeq,
			&claim.ClaimID,
			&claim.PolicyID,
			&claim.ClaimType,
			&claim.ClaimDate,
			&claim.Amount,
			&claim.Status,
			&claim.LossAt.Longitude,
			&claim.LossAt.Latitude,
			&claim.TransformedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan staging claim: %w", scanErr)
		}
		claims = append(claims, claim)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate staging claims: %w", rowsErr)
	}
	return claims, nil
}

// advanceWatermarkTx upserts the watermark inside the caller's transaction.
// GREATEST keeps the value monotonic even if a stale writer commits late.
func advanceWatermarkTx(ctx context.Context, tx pgx.Tx, mark domain.Watermark) error {
	_, err := tx.Exec(
		ctx,
		`INSERT INTO watermarks (dataset, transition, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (dataset, transition)
		 DO UPDATE SET value = GREATEST(watermarks.value, EXCLUDED.value), updated_at = now()`,
		mark.Dataset,
		string(mark.Transition),
		mark.Value,
	)
	if err != nil {
		return fmt.Errorf("failed to advance watermark: %w", err)
	}
	return nil
}
