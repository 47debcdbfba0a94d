package schema

import "github.com/coverlake/coverlake/internal/domain"

// Dataset names fixed by the insurance warehouse domain.
const (
	PoliciesDataset = "policies"
	ClaimsDataset   = "claims"
)

// PolicyFields is the column layout for landed policy files, in file order.
func PolicyFields() []domain.FieldDefinition {
	return []domain.FieldDefinition{
		{Name: "policy_id", Type: domain.FieldTypeString},
		{Name: "customer_id", Type: domain.FieldTypeString},
		{Name: "product_type", Type: domain.FieldTypeString},
		{Name: "policy_start_date", Type: domain.FieldTypeDate},
		{Name: "policy_end_date", Type: domain.FieldTypeDate, Nullable: true},
		{Name: "monthly_premium", Type: domain.FieldTypeDecimal, Precision: 12, Scale: 2},
		{Name: "sum_assured", Type: domain.FieldTypeDecimal, Precision: 14, Scale: 2},
		{Name: "insured_latitude", Type: domain.FieldTypeGeoPoint, GeoRole: domain.GeoRoleLatitude},
		{Name: "insured_longitude", Type: domain.FieldTypeGeoPoint, GeoRole: domain.GeoRoleLongitude},
	}
}

// ClaimFields is the column layout for landed claim files, in file order.
func ClaimFields() []domain.FieldDefinition {
	return []domain.FieldDefinition{
		{Name: "claim_id", Type: domain.FieldTypeString},
		{Name: "policy_id", Type: domain.FieldTypeString},
		{Name: "claim_type", Type: domain.FieldTypeString},
		{Name: "claim_date", Type: domain.FieldTypeDate},
		{Name: "claim_amount", Type: domain.FieldTypeDecimal, Precision: 14, Scale: 2},
		{Name: "claim_status", Type: domain.FieldTypeString},
		{Name: "loss_latitude", Type: domain.FieldTypeGeoPoint, GeoRole: domain.GeoRoleLatitude},
		{Name: "loss_longitude", Type: domain.FieldTypeGeoPoint, GeoRole: domain.GeoRoleLongitude},
	}
}
