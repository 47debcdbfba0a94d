package domain

// FieldType represents the semantic type of a column in a dataset schema
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeInteger FieldType = "integer"
	FieldTypeDecimal FieldType = "decimal"
	FieldTypeDate    FieldType = "date"
	FieldTypeFloat   FieldType = "float"
	// FieldTypeGeoPoint marks one half of a latitude/longitude pair. The Role
	// on the FieldDefinition says which half, so the transform layer can pack
	// both halves into a single location value.
	FieldTypeGeoPoint FieldType = "geo_point"
)

// GeoRole distinguishes the two halves of a packed geo pair.
type GeoRole string

const (
	GeoRoleNone      GeoRole = ""
	GeoRoleLatitude  GeoRole = "latitude"
	GeoRoleLongitude GeoRole = "longitude"
)

// FieldDefinition describes one column of a dataset schema
type FieldDefinition struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Nullable    bool      `json:"nullable"`
	Description string    `json:"description,omitempty"`
	// Precision and Scale apply to decimal fields only.
	Precision int     `json:"precision,omitempty"`
	Scale     int     `json:"scale,omitempty"`
	GeoRole   GeoRole `json:"geoRole,omitempty"`
}

// SchemaDefinition is the registered column layout for a dataset. Columns are
// positional: landed files carry values in declaration order.
type SchemaDefinition struct {
	Dataset string            `json:"dataset"`
	Fields  []FieldDefinition `json:"fields"`
}

// NewSchemaDefinition copies the field slice so registered schemas stay
// immutable reference data.
func NewSchemaDefinition(dataset string, fields []FieldDefinition) SchemaDefinition {
	return SchemaDefinition{
		Dataset: dataset,
		Fields:  copyFields(fields),
	}
}

// Field returns the definition for the named column.
func (sd SchemaDefinition) Field(name string) (FieldDefinition, bool) {
	for _, field := range sd.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldDefinition{}, false
}

// FieldNames returns column names in declaration order.
func (sd SchemaDefinition) FieldNames() []string {
	names := make([]string, len(sd.Fields))
	for i, field := range sd.Fields {
		names[i] = field.Name
	}
	return names
}

func copyFields(fields []FieldDefinition) []FieldDefinition {
	if fields == nil {
		return nil
	}
	newFields := make([]FieldDefinition, len(fields))
	copy(newFields, fields)
	return newFields
}
