package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/coverlake/coverlake/internal/domain"
)

func validPolicyRow() map[string]string {
	return map[string]string{
		"policy_id":         "POL-1001",
		"customer_id":       "CUST-1",
		"product_type":      "FUNERAL",
		"policy_start_date": "2024-01-15",
		"monthly_premium":   "125.50",
		"sum_assured":       "100000.00",
		"insured_latitude":  "-33.92",
		"insured_longitude": "18.42",
	}
}

func TestValidateAcceptsCompletePolicyRow(t *testing.T) {
	registry := NewDefaultRegistry()

	ok, problems := registry.Validate(PoliciesDataset, validPolicyRow())
	if !ok {
		t.Fatalf("expected row to validate, got problems: %v", problems)
	}
}

func TestValidateAllowsNullableEndDate(t *testing.T) {
	registry := NewDefaultRegistry()

	row := validPolicyRow()
	// policy_end_date absent: open-ended policy, still valid.
	ok, problems := registry.Validate(PoliciesDataset, row)
	if !ok {
		t.Fatalf("expected open-ended policy to validate, got problems: %v", problems)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	registry := NewDefaultRegistry()

	row := validPolicyRow()
	delete(row, "policy_id")
	row["monthly_premium"] = "not-a-number"
	row["insured_latitude"] = "95.0"

	ok, problems := registry.Validate(PoliciesDataset, row)
	if ok {
		t.Fatalf("expected row to be rejected")
	}
	if len(problems) != 3 {
		t.Fatalf("expected 3 problems, got %d: %v", len(problems), problems)
	}
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	registry := NewDefaultRegistry()

	row := validPolicyRow()
	delete(row, "policy_start_date")

	ok, problems := registry.Validate(PoliciesDataset, row)
	if ok {
		t.Fatalf("expected row to be rejected")
	}
	if len(problems) != 1 || !strings.Contains(problems[0], "policy_start_date") {
		t.Fatalf("unexpected problems: %v", problems)
	}
}

func TestValidateGeoRanges(t *testing.T) {
	registry := NewDefaultRegistry()

	cases := []struct {
		name  string
		field string
		value string
		valid bool
	}{
		{"latitude upper bound", "insured_latitude", "90", true},
		{"latitude above range", "insured_latitude", "90.5", false},
		{"latitude below range", "insured_latitude", "-91", false},
		{"longitude lower bound", "insured_longitude", "-180", true},
		{"longitude above range", "insured_longitude", "180.1", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := validPolicyRow()
			row[tc.field] = tc.value
			ok, problems := registry.Validate(PoliciesDataset, row)
			if ok != tc.valid {
				t.Fatalf("valid=%v, expected %v, problems: %v", ok, tc.valid, problems)
			}
		})
	}
}

func TestValidateDecimalScale(t *testing.T) {
	registry := NewDefaultRegistry()

	row := validPolicyRow()
	row["monthly_premium"] = "125.505"

	ok, problems := registry.Validate(PoliciesDataset, row)
	if ok {
		t.Fatalf("expected three decimal places to exceed scale 2, problems: %v", problems)
	}
}

func TestValidateDateFormats(t *testing.T) {
	registry := NewDefaultRegistry()

	for _, raw := range []string{"2024-01-15", "2024/01/15", "15/01/2024"} {
		row := validPolicyRow()
		row["policy_start_date"] = raw
		if ok, problems := registry.Validate(PoliciesDataset, row); !ok {
			t.Fatalf("expected date %q to validate, problems: %v", raw, problems)
		}
	}

	row := validPolicyRow()
	row["policy_start_date"] = "Jan 15 2024"
	if ok, _ := registry.Validate(PoliciesDataset, row); ok {
		t.Fatalf("expected unrecognized date format to be rejected")
	}
}

func TestValidateUnknownDataset(t *testing.T) {
	registry := NewDefaultRegistry()

	ok, problems := registry.Validate("vehicles", map[string]string{})
	if ok {
		t.Fatalf("expected unknown dataset to fail validation")
	}
	if len(problems) != 1 {
		t.Fatalf("unexpected problems: %v", problems)
	}

	_, err := registry.Get("vehicles")
	if !errors.Is(err, ErrUnknownDataset) {
		t.Fatalf("expected ErrUnknownDataset, got %v", err)
	}
}

func TestRegisterReplacesSchema(t *testing.T) {
	registry := NewRegistry()
	registry.Register("events", []domain.FieldDefinition{
		{Name: "id", Type: domain.FieldTypeString},
	})
	registry.Register("events", []domain.FieldDefinition{
		{Name: "id", Type: domain.FieldTypeString},
		{Name: "count", Type: domain.FieldTypeInteger},
	})

	schema, err := registry.Get("events")
	if err != nil {
		t.Fatalf("get returned error: %v", err)
	}
	if len(schema.Fields) != 2 {
		t.Fatalf("expected replacement schema with 2 fields, got %d", len(schema.Fields))
	}
}
