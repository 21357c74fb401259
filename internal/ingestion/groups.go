package ingestion

import (
	"strconv"

	"github.com/valgdash/backend/internal/storage/models"
	"github.com/valgdash/backend/internal/tabular"
)

// PollGroup is one unique poll reconstructed from flat history rows:
// the header fields plus the per-party rows that share them.
type PollGroup struct {
	PollDate   string
	Pollster   string
	SampleSize int
	Rows       []tabular.Record
}

// Results projects the group's rows into per-party results in
// row-encounter order.
func (g *PollGroup) Results() []models.PollResult {
	results := make([]models.PollResult, 0, len(g.Rows))
	for _, row := range g.Rows {
		results = append(results, models.PollResult{
			Party: stringField(row, "party_code"),
			Value: floatField(row, "value"),
		})
	}
	return results
}

// PollGroups preserves first-seen insertion order of groups.
type PollGroups struct {
	keys   []string
	groups map[string]*PollGroup
}

func (pg *PollGroups) Len() int {
	return len(pg.groups)
}

func (pg *PollGroups) Keys() []string {
	return pg.keys
}

func (pg *PollGroups) Get(key string) *PollGroup {
	return pg.groups[key]
}

// GroupPollRows collapses flat per-party-per-date rows into unique
// polls keyed by date|pollster|sample size. Rows whose segment is not
// the literal "all" (demographic sub-segments) are excluded. The
// reducer never rejects input: a row missing a grouping field lands in
// a key with "undefined" in that position.
func GroupPollRows(rows []tabular.Record) *PollGroups {
	pg := &PollGroups{groups: make(map[string]*PollGroup)}

	for _, row := range rows {
		if stringField(row, "segment") != "all" {
			continue
		}

		key := keyPart(row, "poll_date") + "|" + keyPart(row, "pollster") + "|" + keyPart(row, "n")

		group, exists := pg.groups[key]
		if !exists {
			group = &PollGroup{
				PollDate:   stringField(row, "poll_date"),
				Pollster:   stringField(row, "pollster"),
				SampleSize: int(floatField(row, "n")),
			}
			pg.groups[key] = group
			pg.keys = append(pg.keys, key)
		}
		group.Rows = append(group.Rows, row)
	}

	return pg
}

func keyPart(row tabular.Record, field string) string {
	value, ok := row[field]
	if !ok || value == nil {
		return "undefined"
	}
	return formatValue(value)
}

func formatValue(value any) string {
	switch tv := value.(type) {
	case string:
		return tv
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	default:
		return "undefined"
	}
}

func stringField(row tabular.Record, field string) string {
	switch tv := row[field].(type) {
	case string:
		return tv
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	default:
		return ""
	}
}

func floatField(row tabular.Record, field string) float64 {
	switch tv := row[field].(type) {
	case float64:
		return tv
	case string:
		n, err := strconv.ParseFloat(tv, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
