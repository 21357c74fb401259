package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/valgdash/backend/internal/tabular"
	"github.com/valgdash/backend/pkg/logger"
)

// MapRecord normalizes one flat record into the canonical field set for
// a table. Field names are accepted in both camelCase and snake_case,
// camelCase winning when both are present. Missing strings default to
// "", missing numbers to 0, and embedded JSON that fails to parse is
// replaced by a safe fallback instead of failing the record. Returns
// ok=false for an unknown table; callers treat that as "record
// skipped", not an error.
func MapRecord(table Table, rec tabular.Record) (tabular.Record, bool) {
	switch table {
	case TableNationalOverview:
		out := tabular.Record{
			"lastUpdated":      mapString(rec, nowISO(), "lastUpdated", "last_updated"),
			"turnoutEstimate":  mapNumber(rec, "turnoutEstimate", "turnout_estimate"),
			"uncertainty":      mapNumber(rec, "uncertainty"),
			"partyProjections": mapJSONArray(rec, "partyProjections", "party_projections"),
			"scenarioNotes":    mapJSONArray(rec, "scenarioNotes", "scenario_notes"),
		}
		putOptionalObject(out, rec, "primaryChart", "primary_chart")
		return out, true

	case TableMunicipalitySnapshots:
		return tabular.Record{
			"slug":         mapString(rec, "", "slug"),
			"name":         mapString(rec, "", "name"),
			"region":       mapString(rec, "", "region"),
			"leadingParty": mapString(rec, "", "leadingParty", "leading_party"),
			"voteShare":    mapNumber(rec, "voteShare", "vote_share"),
			"turnout":      mapNumber(rec, "turnout"),
		}, true

	case TablePolls:
		out := tabular.Record{
			"pollster":    mapString(rec, "", "pollster"),
			"conductedAt": mapString(rec, nowISO(), "conductedAt", "conducted_at"),
			"sampleSize":  mapNumber(rec, "sampleSize", "sample_size"),
			"methodology": mapString(rec, "Unknown", "methodology"),
			"parties":     mapJSONArray(rec, "parties"),
		}
		putOptionalObject(out, rec, "chartSummary", "chart_summary")
		return out, true

	case TableScenarios:
		out := tabular.Record{
			"name":            mapString(rec, "", "name"),
			"description":     mapString(rec, "", "description"),
			"probability":     mapNumber(rec, "probability"),
			"impactedParties": mapJSONArray(rec, "impactedParties", "impacted_parties"),
		}
		putOptionalObject(out, rec, "chartSummary", "chart_summary")
		return out, true

	case TableCurrentResults:
		return tabular.Record{
			"afstemningsomrade": mapString(rec, "", "afstemningsomrade"),
			"bogstavbetegnelse": mapString(rec, "", "bogstavbetegnelse"),
			"listenavn":         mapString(rec, "", "listenavn"),
			"navn":              mapString(rec, "", "navn"),
			"stemmetal":         mapNumber(rec, "stemmetal"),
			"municipality":      mapString(rec, "", "municipality"),
			"lastPull":          mapString(rec, nowISO(), "lastPull", "last_pull"),
		}, true
	}

	return nil, false
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// present picks the first alias whose value is non-empty. Empty strings
// and nil do not count; numeric zero does not count either, matching
// the lenient alias-or-default semantics the feed producers rely on.
func present(rec tabular.Record, aliases ...string) (any, bool) {
	for _, key := range aliases {
		v, ok := rec[key]
		if !ok || v == nil {
			continue
		}
		switch tv := v.(type) {
		case string:
			if tv == "" {
				continue
			}
		case float64:
			if tv == 0 {
				continue
			}
		case bool:
			if !tv {
				continue
			}
		}
		return v, true
	}
	return nil, false
}

func mapString(rec tabular.Record, fallback string, aliases ...string) string {
	v, ok := present(rec, aliases...)
	if !ok {
		return fallback
	}
	switch tv := v.(type) {
	case string:
		return tv
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(tv)
	default:
		data, err := json.Marshal(tv)
		if err != nil {
			return fallback
		}
		return string(data)
	}
}

// mapNumber coerces to float64. Non-numeric values become NaN so the
// strict validator rejects them instead of silently storing zero.
func mapNumber(rec tabular.Record, aliases ...string) float64 {
	v, ok := present(rec, aliases...)
	if !ok {
		return 0
	}
	switch tv := v.(type) {
	case float64:
		return tv
	case int:
		return float64(tv)
	case string:
		n, err := strconv.ParseFloat(tv, 64)
		if err != nil {
			return math.NaN()
		}
		return n
	default:
		return math.NaN()
	}
}

// mapJSONArray accepts a native array or a JSON-encoded string. A
// malformed string falls back to an empty array with a warning; it
// never fails the record.
func mapJSONArray(rec tabular.Record, aliases ...string) []any {
	v, ok := present(rec, aliases...)
	if !ok {
		return []any{}
	}
	switch tv := v.(type) {
	case []any:
		return tv
	case string:
		var parsed []any
		if err := json.Unmarshal([]byte(tv), &parsed); err != nil {
			logger.Warn("Failed to parse embedded JSON array, substituting empty",
				zap.String("field", aliases[0]),
				zap.Error(err),
			)
			return []any{}
		}
		return parsed
	default:
		return []any{}
	}
}

// putOptionalObject sets out[canonical] only when the source carries a
// usable object; a malformed JSON string leaves the field absent.
func putOptionalObject(out, rec tabular.Record, canonical string, aliases ...string) {
	v, ok := present(rec, append([]string{canonical}, aliases...)...)
	if !ok {
		return
	}
	switch tv := v.(type) {
	case map[string]any:
		out[canonical] = tv
	case tabular.Record:
		out[canonical] = map[string]any(tv)
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(tv), &parsed); err != nil {
			logger.Warn("Failed to parse embedded JSON object, dropping field",
				zap.String("field", canonical),
				zap.Error(err),
			)
			return
		}
		out[canonical] = parsed
	}
}
