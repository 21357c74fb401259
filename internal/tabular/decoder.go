package tabular

import (
	"encoding/csv"
	"errors"
	"strconv"
	"strings"
)

// ErrMalformedInput means the payload decoded to nothing usable: empty
// text, a header with no data rows, or CSV the parser rejects.
var ErrMalformedInput = errors.New("no data found in input")

// Record is one flat row keyed by header name.
type Record map[string]any

// CoercePolicy controls the dynamic-typing step applied to CSV cell
// values. Coercion happens exactly once, here at the decode boundary;
// downstream stages never re-coerce.
type CoercePolicy int

const (
	// CoerceNone leaves every cell a string.
	CoerceNone CoercePolicy = iota

	// CoerceNumeric turns any cell that parses fully as a number into a
	// float64. This mirrors the feed producers' expectations but will
	// also swallow string-valued numeric-looking fields such as postal
	// codes, so callers that need those must pick CoerceNone.
	CoerceNumeric
)

func (p CoercePolicy) apply(value string) any {
	if p == CoerceNumeric && value != "" {
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			return n
		}
	}
	return value
}

// DecodeCSV parses CSV text whose first row is the header. Blank lines
// are skipped. Rows are returned in input order.
func DecodeCSV(text string, policy CoercePolicy) ([]Record, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrMalformedInput
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, ErrMalformedInput
	}
	if len(rows) < 2 {
		return nil, ErrMalformedInput
	}

	header := rows[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		rec := make(Record, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = policy.apply(row[i])
			}
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, ErrMalformedInput
	}
	return records, nil
}

// FromObjects accepts rows that arrived pre-parsed (a JSON array of
// objects). Values pass through unchanged; no re-coercion.
func FromObjects(objects []map[string]any) ([]Record, error) {
	if len(objects) == 0 {
		return nil, ErrMalformedInput
	}
	records := make([]Record, len(objects))
	for i, obj := range objects {
		records[i] = Record(obj)
	}
	return records, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
