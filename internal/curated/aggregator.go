// Package curated recomputes the derived analytic tables from current STAGING
// content. Every table is a full replacement: recompute drops the previous
// rows and rebuilds, so the result only depends on what staging holds now.
package curated

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/coverlake/coverlake/internal/domain"
	"github.com/coverlake/coverlake/internal/repository"
)

// ErrUnknownTable is returned when a recompute names a table that is not one
// of the curated tables.
var ErrUnknownTable = errors.New("unknown curated table")

// FuneralProduct is the product line the geo fraud aggregate watches.
const FuneralProduct = "FUNERAL"

// Config holds the aggregate tuning knobs.
type Config struct {
	// FraudThreshold flags a location bucket once its FUNERAL claim count is
	// strictly above it.
	FraudThreshold int
	// LocationDecimals is the coordinate rounding used to bucket claim
	// locations.
	LocationDecimals int
}

// DefaultConfig returns the standard aggregate settings.
func DefaultConfig() Config {
	return Config{
		FraudThreshold:   3,
		LocationDecimals: 2,
	}
}

// Aggregator computes the curated tables.
type Aggregator struct {
	stagingRepo repository.StagingRepository
	curatedRepo repository.CuratedRepository
	log         *slog.Logger
	clock       clockwork.Clock
	cfg         Config
}

// NewAggregator creates a curated aggregator.
func NewAggregator(
	stagingRepo repository.StagingRepository,
	curatedRepo repository.CuratedRepository,
	log *slog.Logger,
	clock clockwork.Clock,
	cfg Config,
) *Aggregator {
	if cfg.FraudThreshold <= 0 {
		cfg.FraudThreshold = 3
	}
	if cfg.LocationDecimals <= 0 {
		cfg.LocationDecimals = 2
	}
	return &Aggregator{
		stagingRepo: stagingRepo,
		curatedRepo: curatedRepo,
		log:         log,
		clock:       clock,
		cfg:         cfg,
	}
}

// Recompute rebuilds a single curated table from current staging content.
func (a *Aggregator) Recompute(ctx context.Context, table string) (domain.CuratedResult, error) {
	switch table {
	case domain.CuratedLossRatio:
		return a.recomputeLossRatios(ctx)
	case domain.CuratedGeoFraud:
		return a.recomputeFraudFlags(ctx)
	case domain.CuratedSolvency:
		return a.recomputeSolvency(ctx)
	default:
		return domain.CuratedResult{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
}

// RecomputeAll rebuilds every curated table.
func (a *Aggregator) RecomputeAll(ctx context.Context) ([]domain.CuratedResult, error) {
	tables := []string{domain.CuratedLossRatio, domain.CuratedGeoFraud, domain.CuratedSolvency}
	results := make([]domain.CuratedResult, 0, len(tables))
	for _, table := range tables {
		result, err := a.Recompute(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to recompute %s: %w", table, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (a *Aggregator) recomputeLossRatios(ctx context.Context) (domain.CuratedResult, error) {
	policies, err := a.stagingRepo.ListPolicies(ctx)
	if err != nil {
		return domain.CuratedResult{}, err
	}
	claims, err := a.stagingRepo.ListClaims(ctx)
	if err != nil {
		return domain.CuratedResult{}, err
	}

	productByPolicy := make(map[string]string, len(policies))
	premiumByProduct := make(map[string]decimal.Decimal)
	for _, policy := range policies {
		productByPolicy[policy.PolicyID] = policy.ProductType
		premiumByProduct[policy.ProductType] = premiumByProduct[policy.ProductType].Add(policy.AnnualPremium())
	}

	claimsByProduct := make(map[string]decimal.Decimal)
	for _, claim := range claims {
		product, ok := productByPolicy[claim.PolicyID]
		if !ok {
			// Orphan claim: its policy never reached staging. Nothing to
			// attribute the loss to.
			continue
		}
		claimsByProduct[product] = claimsByProduct[product].Add(claim.Amount)
	}

	now := a.clock.Now()
	rows := make([]domain.LossRatioRow, 0, len(premiumByProduct))
	for _, product := range sortedKeys(premiumByProduct) {
		premium := premiumByProduct[product]
		row := domain.LossRatioRow{
			ProductType:   product,
			TotalClaims:   claimsByProduct[product],
			AnnualPremium: premium,
			ComputedAt:    now,
		}
		if premium.IsPositive() {
			ratio := row.TotalClaims.DivRound(premium, domain.RatioRoundingPlaces)
			row.Ratio = &ratio
		}
		rows = append(rows, row)
	}

	if err := a.curatedRepo.ReplaceLossRatios(ctx, rows); err != nil {
		return domain.CuratedResult{}, err
	}
	a.log.Info("recomputed curated table", "table", domain.CuratedLossRatio, "rows", len(rows))
	return domain.CuratedResult{Table: domain.CuratedLossRatio, Rows: len(rows), ComputedAt: now}, nil
}

func (a *Aggregator) recomputeFraudFlags(ctx context.Context) (domain.CuratedResult, error) {
	policies, err := a.stagingRepo.ListPolicies(ctx)
	if err != nil {
		return domain.CuratedResult{}, err
	}
	claims, err := a.stagingRepo.ListClaims(ctx)
	if err != nil {
		return domain.CuratedResult{}, err
	}

	productByPolicy := make(map[string]string, len(policies))
	for _, policy := range policies {
		productByPolicy[policy.PolicyID] = policy.ProductType
	}

	counts := make(map[string]int)
	for _, claim := range claims {
		if productByPolicy[claim.PolicyID] != FuneralProduct {
			continue
		}
		counts[claim.LossAt.RoundedKey(a.cfg.LocationDecimals)]++
	}

	now := a.clock.Now()
	rows := make([]domain.FraudFlagRow, 0)
	for _, key := range sortedKeys(counts) {
		count := counts[key]
		if count <= a.cfg.FraudThreshold {
			continue
		}
		rows = append(rows, domain.FraudFlagRow{
			ProductType: FuneralProduct,
			LocationKey: key,
			ClaimCount:  count,
			ComputedAt:  now,
		})
	}

	if err := a.curatedRepo.ReplaceFraudFlags(ctx, rows); err != nil {
		return domain.CuratedResult{}, err
	}
	a.log.Info("recomputed curated table", "table", domain.CuratedGeoFraud, "rows", len(rows))
	return domain.CuratedResult{Table: domain.CuratedGeoFraud, Rows: len(rows), ComputedAt: now}, nil
}

func (a *Aggregator) recomputeSolvency(ctx context.Context) (domain.CuratedResult, error) {
	policies, err := a.stagingRepo.ListPolicies(ctx)
	if err != nil {
		return domain.CuratedResult{}, err
	}

	type exposure struct {
		open       int
		sumAssured decimal.Decimal
		premium    decimal.Decimal
	}
	byProduct := make(map[string]*exposure)
	for _, policy := range policies {
		if !policy.OpenEnded() {
			continue
		}
		entry, ok := byProduct[policy.ProductType]
		if !ok {
			entry = &exposure{}
			byProduct[policy.ProductType] = entry
		}
		entry.open++
		entry.sumAssured = entry.sumAssured.Add(policy.SumAssured)
		entry.premium = entry.premium.Add(policy.AnnualPremium())
	}

	now := a.clock.Now()
	rows := make([]domain.SolvencyRow, 0, len(byProduct))
	for _, product := range sortedKeys(byProduct) {
		entry := byProduct[product]
		rows = append(rows, domain.SolvencyRow{
			ProductType:     product,
			OpenPolicies:    entry.open,
			TotalSumAssured: entry.sumAssured,
			AnnualPremium:   entry.premium,
			ComputedAt:      now,
		})
	}

	if err := a.curatedRepo.ReplaceSolvency(ctx, rows); err != nil {
		return domain.CuratedResult{}, err
	}
	a.log.Info("recomputed curated table", "table", domain.CuratedSolvency, "rows", len(rows))
	return domain.CuratedResult{Table: domain.CuratedSolvency, Rows: len(rows), ComputedAt: now}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
