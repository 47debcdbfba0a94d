package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coverlake/coverlake/internal/domain"
	"github.com/coverlake/coverlake/internal/schema"
)

// Each cleaning rule is a pure function over one raw row so it can be tested
// in isolation and composed per dataset.

func uppercased(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

func parseDecimalField(fields map[string]string, name string) (decimal.Decimal, error) {
	raw, ok := fields[name]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("field %s is missing", name)
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("field %s: unable to coerce %q to decimal", name, raw)
	}
	return value, nil
}

func parseDateField(fields map[string]string, name string) (time.Time, error) {
	raw, ok := fields[name]
	if !ok {
		return time.Time{}, fmt.Errorf("field %s is missing", name)
	}
	value, err := schema.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %s: %v", name, err)
	}
	return value, nil
}

func packLocationFields(fields map[string]string, lonName, latName string) (domain.Location, error) {
	lonRaw, ok := fields[lonName]
	if !ok {
		return domain.Location{}, fmt.Errorf("field %s is missing", lonName)
	}
	latRaw, ok := fields[latName]
	if !ok {
		return domain.Location{}, fmt.Errorf("field %s is missing", latName)
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return domain.Location{}, fmt.Errorf("field %s: unable to coerce %q to float", lonName, lonRaw)
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return domain.Location{}, fmt.Errorf("field %s: unable to coerce %q to float", latName, latRaw)
	}
	return domain.PackLocation(lon, lat)
}

// buildPolicy normalizes one VALID raw policy row into a staging policy.
// The boolean reports whether the row passed the premium floor filter.
func buildPolicy(record domain.RawRecord, premiumFloor decimal.Decimal, now time.Time) (domain.StagingPolicy, bool, error) {
	premium, err := parseDecimalField(record.Fields, "monthly_premium")
	if err != nil {
		return domain.StagingPolicy{}, false, err
	}
	// Premiums must exceed the floor; zero-premium policies carry no exposure
	// worth staging.
	if premium.Cmp(premiumFloor) <= 0 {
		return domain.StagingPolicy{}, false, nil
	}

	sumAssured, err := parseDecimalField(record.Fields, "sum_assured")
	if err != nil {
		return domain.StagingPolicy{}, false, err
	}

	startDate, err := parseDateField(record.Fields, "policy_start_date")
	if err != nil {
		return domain.StagingPolicy{}, false, err
	}

	var endDate *time.Time
	if _, ok := record.Fields["policy_end_date"]; ok {
		parsed, err := parseDateField(record.Fields, "policy_end_date")
		if err != nil {
			return domain.StagingPolicy{}, false, err
		}
		endDate = &parsed
	}

	location, err := packLocationFields(record.Fields, "insured_longitude", "insured_latitude")
	if err != nil {
		return domain.StagingPolicy{}, false, err
	}

	return domain.StagingPolicy{
		ID:             uuid.New(),
		RawID:          record.ID,
		RawSeq:         record.Seq,
		PolicyID:       record.Fields["policy_id"],
		CustomerID:     record.Fields["customer_id"],
		ProductType:    uppercased(record.Fields["product_type"]),
		StartDate:      startDate,
		EndDate:        endDate,
		MonthlyPremium: premium,
		SumAssured:     sumAssured,
		InsuredAt:      location,
		TransformedAt:  now,
	}, true, nil
}

// buildClaim normalizes one VALID raw claim row into a staging claim. The
// boolean reports whether the row passed the claim amount floor filter.
func buildClaim(record domain.RawRecord, claimFloor decimal.Decimal, now time.Time) (domain.StagingClaim, bool, error) {
	amount, err := parseDecimalField(record.Fields, "claim_amount")
	if err != nil {
		return domain.StagingClaim{}, false, err
	}
	// Claim amounts may be zero but never negative.
	if amount.Cmp(claimFloor) < 0 {
		return domain.StagingClaim{}, false, nil
	}

	claimDate, err := parseDateField(record.Fields, "claim_date")
	if err != nil {
		return domain.StagingClaim{}, false, err
	}

	location, err := packLocationFields(record.Fields, "loss_longitude", "loss_latitude")
	if err != nil {
		return domain.StagingClaim{}, false, err
	}

	return domain.StagingClaim{
		ID:            uuid.New(),
		RawID:         record.ID,
		RawSeq:        record.Seq,
		ClaimID:       record.Fields["claim_id"],
		PolicyID:      record.Fields["policy_id"],
		ClaimType:     uppercased(record.Fields["claim_type"]),
		ClaimDate:     claimDate,
		Amount:        amount,
		Status:        uppercased(record.Fields["claim_status"]),
		LossAt:        location,
		TransformedAt: now,
	}, true, nil
}
