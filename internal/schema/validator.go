package schema

import (
	"fmt"
	"math"

	"github.com/valgdash/backend/internal/tabular"
)

// ValidationError reports a record that failed strict type checking.
// These are per-record failures; the batch keeps going.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ValidateRecord strictly re-checks a mapped record before it is
// persisted. Unlike the mapper it never coerces: a wrong-typed or NaN
// field rejects the record with a message naming the field.
func ValidateRecord(table Table, data any) (tabular.Record, error) {
	rec, ok := asObject(data)
	if !ok {
		return nil, validationErrorf("Invalid %s data: expected object", table)
	}

	switch table {
	case TableNationalOverview:
		return validateFields(rec, []fieldSpec{
			{"lastUpdated", kindString, false},
			{"turnoutEstimate", kindNumber, false},
			{"uncertainty", kindNumber, false},
			{"partyProjections", kindArray, false},
			{"scenarioNotes", kindArray, false},
			{"primaryChart", kindObject, true},
		})
	case TableMunicipalitySnapshots:
		return validateFields(rec, []fieldSpec{
			{"slug", kindString, false},
			{"name", kindString, false},
			{"region", kindString, false},
			{"leadingParty", kindString, false},
			{"voteShare", kindNumber, false},
			{"turnout", kindNumber, false},
		})
	case TablePolls:
		return validateFields(rec, []fieldSpec{
			{"pollster", kindString, false},
			{"conductedAt", kindString, false},
			{"sampleSize", kindNumber, false},
			{"methodology", kindString, false},
			{"parties", kindArray, false},
			{"chartSummary", kindObject, true},
		})
	case TableScenarios:
		return validateFields(rec, []fieldSpec{
			{"name", kindString, false},
			{"description", kindString, false},
			{"probability", kindNumber, false},
			{"impactedParties", kindArray, false},
			{"chartSummary", kindObject, true},
		})
	case TableCurrentResults:
		return validateFields(rec, []fieldSpec{
			{"afstemningsomrade", kindString, false},
			{"bogstavbetegnelse", kindString, false},
			{"listenavn", kindString, false},
			{"navn", kindString, false},
			{"stemmetal", kindNumber, false},
			{"municipality", kindString, false},
			{"lastPull", kindString, false},
		})
	}

	return nil, validationErrorf("Unknown table: %s", table)
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindArray
	kindObject
)

func (k fieldKind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindNumber:
		return "number"
	case kindArray:
		return "array"
	default:
		return "object"
	}
}

type fieldSpec struct {
	name     string
	kind     fieldKind
	optional bool
}

func validateFields(rec tabular.Record, specs []fieldSpec) (tabular.Record, error) {
	out := make(tabular.Record, len(specs))
	for _, spec := range specs {
		value, exists := rec[spec.name]
		if spec.optional {
			if !exists || value == nil {
				continue
			}
		}
		checked, err := checkKind(value, spec.name, spec.kind)
		if err != nil {
			return nil, err
		}
		out[spec.name] = checked
	}
	return out, nil
}

func checkKind(value any, name string, kind fieldKind) (any, error) {
	switch kind {
	case kindString:
		s, ok := value.(string)
		if !ok {
			return nil, validationErrorf("Invalid %s: expected string, got %s", name, typeName(value))
		}
		return s, nil
	case kindNumber:
		n, ok := value.(float64)
		if !ok || math.IsNaN(n) {
			return nil, validationErrorf("Invalid %s: expected number, got %s", name, typeName(value))
		}
		return n, nil
	case kindArray:
		a, ok := value.([]any)
		if !ok {
			return nil, validationErrorf("Invalid %s: expected array, got %s", name, typeName(value))
		}
		return a, nil
	default:
		obj, ok := asObject(value)
		if !ok {
			return nil, validationErrorf("Invalid %s: expected object, got %s", name, typeName(value))
		}
		return map[string]any(obj), nil
	}
}

func asObject(value any) (tabular.Record, bool) {
	switch tv := value.(type) {
	case tabular.Record:
		return tv, true
	case map[string]any:
		return tabular.Record(tv), true
	default:
		return nil, false
	}
}

func typeName(value any) string {
	switch tv := value.(type) {
	case nil:
		return "undefined"
	case string:
		return "string"
	case float64:
		if math.IsNaN(tv) {
			return "NaN"
		}
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any, tabular.Record:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
