package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/coverlake/coverlake/internal/db"
	"github.com/coverlake/coverlake/internal/domain"
)

// curatedRepository implements CuratedRepository with replace semantics: each
// Replace call truncates the table and reloads it inside one transaction.
type curatedRepository struct {
	conn *db.Connection
}

// NewCuratedRepository creates a new curated repository
func NewCuratedRepository(conn *db.Connection) CuratedRepository {
	return &curatedRepository{conn: conn}
}

func (r *curatedRepository) ReplaceLossRatios(ctx context.Context, rows []domain.LossRatioRow) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM curated_loss_ratio`); err != nil {
			return fmt.Errorf("failed to clear loss ratio table: %w", err)
		}
		for _, row := range rows {
			_, err := tx.Exec(
				ctx,
				`INSERT INTO curated_loss_ratio (product_type, total_claims, annual_premium, loss_ratio, computed_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				row.ProductType,
				row.TotalClaims,
				row.AnnualPremium,
				row.Ratio,
				row.ComputedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert loss ratio row: %w", err)
			}
		}
		return nil
	})
}

func (r *curatedRepository) ReplaceFraudFlags(ctx context.Context, rows []domain.FraudFlagRow) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM curated_geo_fraud_flags`); err != nil {
			return fmt.Errorf("failed to clear fraud flag table: %w", err)
		}
		for _, row := range rows {
			_, err := tx.Exec(
				ctx,
				`INSERT INTO curated_geo_fraud_flags (product_type, location_key, claim_count, computed_at)
				 VALUES ($1, $2, $3, $4)`,
				row.ProductType,
				row.LocationKey,
				row.ClaimCount,
				row.ComputedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert fraud flag row: %w", err)
			}
		}
		return nil
	})
}

func (r *curatedRepository) ReplaceSolvency(ctx context.Context, rows []domain.SolvencyRow) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM curated_solvency_exposure`); err != nil {
			return fmt.Errorf("failed to clear solvency table: %w", err)
		}
		for _, row := range rows {
			_, err := tx.Exec(
				ctx,
				`INSERT INTO curated_solvency_exposure (product_type, open_policies, total_sum_assured, annual_premium, computed_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				row.ProductType,
				row.OpenPolicies,
				row.TotalSumAssured,
				row.AnnualPremium,
				row.ComputedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert solvency row: %w", err)
			}
		}
		return nil
	})
}

func (r *curatedRepository) ListLossRatios(ctx context.Context) ([]domain.LossRatioRow, error) {
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT product_type, total_claims, annual_premium, loss_ratio, computed_at
		 FROM curated_loss_ratio ORDER BY product_type`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list loss ratios: %w", err)
	}
	defer rows.Close()

	var result []domain.LossRatioRow
	for rows.Next() {
		var row domain.LossRatioRow
		if scanErr := rows.Scan(&row.ProductType, &row.TotalClaims, &row.AnnualPremium, &row.Ratio, &row.ComputedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan loss ratio row: %w", scanErr)
		}
		result = append(result, row)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate loss ratios: %w", rowsErr)
	}
	return result, nil
}

func (r *curatedRepository) ListFraudFlags(ctx context.Context) ([]domain.FraudFlagRow, error) {
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT product_type, location_key, claim_count, computed_at
		 FROM curated_geo_fraud_flags ORDER BY product_type, location_key`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list fraud flags: %w", err)
	}
	defer rows.Close()

	var result []domain.FraudFlagRow
	for rows.Next() {
		var row domain.FraudFlagRow
		if scanErr := rows.Scan(&row.ProductType, &row.LocationKey, &row.ClaimCount, &row.ComputedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan fraud flag row: %w", scanErr)
		}
		result = append(result, row)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate fraud flags: %w", rowsErr)
	}
	return result, nil
}

func (r *curatedRepository) ListSolvency(ctx context.Context) ([]domain.SolvencyRow, error) {
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT product_type, open_policies, total_sum_assured, annual_premium, computed_at
		 FROM curated_solvency_exposure ORDER BY product_type`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list solvency exposure: %w", err)
	}
	defer rows.Close()

	var result []domain.SolvencyRow
	for rows.Next() {
		var row domain.SolvencyRow
		if scanErr := rows.Scan(&row.ProductType, &row.OpenPolicies, &row.TotalSumAssured, &row.AnnualPremium, &row.ComputedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan solvency row: %w", scanErr)
		}
		result = append(result, row)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate solvency exposure: %w", rowsErr)
	}
	return result, nil
}
