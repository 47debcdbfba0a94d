package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Location is a packed longitude/latitude pair.
type Location struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// PackLocation validates the coordinate ranges and packs them into a single
// location value.
func PackLocation(longitude, latitude float64) (Location, error) {
	if latitude < -90 || latitude > 90 {
		return Location{}, fmt.Errorf("latitude %v out of range [-90, 90]", latitude)
	}
	if longitude < -180 || longitude > 180 {
		return Location{}, fmt.Errorf("longitude %v out of range [-180, 180]", longitude)
	}
	return Location{Longitude: longitude, Latitude: latitude}, nil
}

// RoundedKey buckets the location to the given number of decimal places. Used
// for grouping nearby claims in the fraud aggregate.
func (l Location) RoundedKey(decimals int) string {
	return fmt.Sprintf("%.*f,%.*f", decimals, l.Longitude, decimals, l.Latitude)
}

// StagingPolicy is the cleaned, type-normalized form of one VALID raw policy
// row. Staging rows are never edited in place, only regenerated from RAW.
type StagingPolicy struct {
	ID             uuid.UUID       `json:"id"`
	RawID          uuid.UUID       `json:"raw_id"`
	RawSeq         int64           `json:"raw_seq"`
	PolicyID       string          `json:"policy_id"`
	CustomerID     string          `json:"customer_id"`
	ProductType    string          `json:"product_type"`
	StartDate      time.Time       `json:"policy_start_date"`
	EndDate        *time.Time      `json:"policy_end_date,omitempty"`
	MonthlyPremium decimal.Decimal `json:"monthly_premium"`
	SumAssured     decimal.Decimal `json:"sum_assured"`
	InsuredAt      Location        `json:"insured_location"`
	TransformedAt  time.Time       `json:"transformed_at"`
}

// OpenEnded reports whether the policy has no end date.
func (p StagingPolicy) OpenEnded() bool {
	return p.EndDate == nil
}

// AnnualPremium is the monthly premium annualized.
func (p StagingPolicy) AnnualPremium() decimal.Decimal {
	return p.MonthlyPremium.Mul(decimal.NewFromInt(12))
}

// StagingClaim is the cleaned, type-normalized form of one VALID raw claim row.
type StagingClaim struct {
	ID            uuid.UUID       `json:"id"`
	RawID         uuid.UUID       `json:"raw_id"`
	RawSeq        int64           `json:"raw_seq"`
	ClaimID       string          `json:"claim_id"`
	PolicyID      string          `json:"policy_id"`
	ClaimType     string          `json:"claim_type"`
	ClaimDate     time.Time       `json:"claim_date"`
	Amount        decimal.Decimal `json:"claim_amount"`
	Status        string          `json:"claim_status"`
	LossAt        Location        `json:"loss_location"`
	TransformedAt time.Time       `json:"transformed_at"`
}
