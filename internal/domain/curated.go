package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Curated table names. Each is a pure aggregate over current STAGING content
// and is always safe to drop and recompute.
const (
	CuratedLossRatio    = "loss_ratio"
	CuratedGeoFraud     = "geo_fraud_flags"
	CuratedSolvency     = "solvency_exposure"
	RatioRoundingPlaces = 4
)

// LossRatioRow is sum(claim_amount) / sum(annualized premium) per product.
// Ratio is nil when the product has no premium to divide by: the ratio is
// undefined, not an error.
type LossRatioRow struct {
	ProductType   string           `json:"product_type"`
	TotalClaims   decimal.Decimal  `json:"total_claims"`
	AnnualPremium decimal.Decimal  `json:"annual_premium"`
	Ratio         *decimal.Decimal `json:"loss_ratio,omitempty"`
	ComputedAt    time.Time        `json:"computed_at"`
}

// FraudFlagRow marks a cluster of FUNERAL claims sharing a rounded loss
// location whose count exceeded the configured threshold.
type FraudFlagRow struct {
	ProductType string    `json:"product_type"`
	LocationKey string    `json:"location_key"`
	ClaimCount  int       `json:"claim_count"`
	ComputedAt  time.Time `json:"computed_at"`
}

// SolvencyRow is the open-ended exposure per product.
type SolvencyRow struct {
	ProductType     string          `json:"product_type"`
	OpenPolicies    int             `json:"open_policies"`
	TotalSumAssured decimal.Decimal `json:"total_sum_assured"`
	AnnualPremium   decimal.Decimal `json:"annual_premium"`
	ComputedAt      time.Time       `json:"computed_at"`
}

// CuratedResult reports one recompute call.
type CuratedResult struct {
	Table      string    `json:"table"`
	Rows       int       `json:"rows"`
	ComputedAt time.Time `json:"computed_at"`
}
