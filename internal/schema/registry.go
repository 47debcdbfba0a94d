package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coverlake/coverlake/internal/domain"
)

// ErrUnknownDataset is returned when no schema has been registered for a
// dataset. This is fatal to the caller: there is nothing sensible to do with
// rows whose layout is unknown.
var ErrUnknownDataset = errors.New("unknown dataset")

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	time.RFC3339,
}

// Registry holds the expected column layout per dataset plus the validation
// rules derived from it. Registered schemas are immutable reference data.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]domain.SchemaDefinition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]domain.SchemaDefinition)}
}

// NewDefaultRegistry creates a registry preloaded with the policies and
// claims dataset schemas.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(PoliciesDataset, PolicyFields())
	r.Register(ClaimsDataset, ClaimFields())
	return r
}

// Register stores the column layout for a dataset, replacing any previous
// registration.
func (r *Registry) Register(dataset string, fields []domain.FieldDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[dataset] = domain.NewSchemaDefinition(dataset, fields)
}

// Get returns the schema registered for a dataset.
func (r *Registry) Get(dataset string) (domain.SchemaDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schema, ok := r.schemas[dataset]
	if !ok {
		return domain.SchemaDefinition{}, fmt.Errorf("%w: %s", ErrUnknownDataset, dataset)
	}
	return schema, nil
}

// Datasets returns the registered dataset names.
func (r *Registry) Datasets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	return names
}

// Validate checks a parsed row against the dataset schema. The row maps column
// name to raw cell text; null cells are absent from the map. Problems are
// collected, not short-circuited, so one pass reports everything wrong with
// the row.
func (r *Registry) Validate(dataset string, row map[string]string) (bool, []string) {
	schema, err := r.Get(dataset)
	if err != nil {
		return false, []string{err.Error()}
	}

	var problems []string
	for _, field := range schema.Fields {
		raw, present := row[field.Name]
		if !present || strings.TrimSpace(raw) == "" {
			if !field.Nullable {
				problems = append(problems, fmt.Sprintf("field %s: required value is missing", field.Name))
			}
			continue
		}
		if err := checkCoercible(field, strings.TrimSpace(raw)); err != nil {
			problems = append(problems, fmt.Sprintf("field %s: %v", field.Name, err))
		}
	}

	return len(problems) == 0, problems
}

func checkCoercible(field domain.FieldDefinition, raw string) error {
	switch field.Type {
	case domain.FieldTypeString:
		return nil
	case domain.FieldTypeInteger:
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			return fmt.Errorf("unable to coerce %q to integer", raw)
		}
		return nil
	case domain.FieldTypeDecimal:
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("unable to coerce %q to decimal", raw)
		}
		if field.Scale > 0 && int(value.Exponent()) < -field.Scale {
			return fmt.Errorf("value %q exceeds scale %d", raw, field.Scale)
		}
		return nil
	case domain.FieldTypeFloat:
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return fmt.Errorf("unable to coerce %q to float", raw)
		}
		return nil
	case domain.FieldTypeDate:
		if _, err := ParseDate(raw); err != nil {
			return fmt.Errorf("unable to coerce %q to date", raw)
		}
		return nil
	case domain.FieldTypeGeoPoint:
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("unable to coerce %q to coordinate", raw)
		}
		switch field.GeoRole {
		case domain.GeoRoleLatitude:
			if value < -90 || value > 90 {
				return fmt.Errorf("latitude %v out of range [-90, 90]", value)
			}
		case domain.GeoRoleLongitude:
			if value < -180 || value > 180 {
				return fmt.Errorf("longitude %v out of range [-180, 180]", value)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported field type %s", field.Type)
	}
}

// ParseDate parses a date cell using the accepted layouts.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}
