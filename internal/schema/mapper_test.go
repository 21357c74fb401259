package schema

import (
	"math"
	"reflect"
	"testing"

	"github.com/valgdash/backend/internal/tabular"
)

func TestMapRecordUnknownTable(t *testing.T) {
	mapped, ok := MapRecord(Table("voter_rolls"), tabular.Record{"a": "b"})
	if ok || mapped != nil {
		t.Errorf("MapRecord(unknown) = %v, %v; want nil, false", mapped, ok)
	}
}

func TestMapRecordAliases(t *testing.T) {
	t.Run("snake_case and camelCase map identically", func(t *testing.T) {
		snake, _ := MapRecord(TablePolls, tabular.Record{"pollster": "Epinion", "sample_size": "250", "conducted_at": "2025-10-01"})
		camel, _ := MapRecord(TablePolls, tabular.Record{"pollster": "Epinion", "sampleSize": "250", "conductedAt": "2025-10-01"})
		if snake["sampleSize"] != 250.0 || camel["sampleSize"] != 250.0 {
			t.Errorf("sampleSize: snake=%v camel=%v, want 250", snake["sampleSize"], camel["sampleSize"])
		}
		if snake["conductedAt"] != camel["conductedAt"] {
			t.Errorf("conductedAt mismatch: %v vs %v", snake["conductedAt"], camel["conductedAt"])
		}
	})

	t.Run("camelCase wins when both present", func(t *testing.T) {
		mapped, _ := MapRecord(TableMunicipalitySnapshots, tabular.Record{
			"leadingParty":  "A",
			"leading_party": "V",
			"slug":          "aarhus",
			"name":          "Aarhus",
			"region":        "midtjylland",
			"voteShare":     31.2,
			"turnout":       84.0,
		})
		if mapped["leadingParty"] != "A" {
			t.Errorf("leadingParty = %v, want camelCase value A", mapped["leadingParty"])
		}
	})
}

func TestMapRecordIdempotent(t *testing.T) {
	canonical := tabular.Record{
		"name":            "Rød blok flertal",
		"description":     "Rød blok opnår 90 mandater",
		"probability":     0.42,
		"impactedParties": []any{"A", "F", "Ø"},
		"chartSummary":    map[string]any{"id": "seat-projection", "title": "Mandater"},
	}

	mapped, ok := MapRecord(TableScenarios, canonical)
	if !ok {
		t.Fatal("MapRecord returned ok=false")
	}
	if !reflect.DeepEqual(map[string]any(mapped), map[string]any(canonical)) {
		t.Errorf("mapping canonical record is not identity:\n got %#v\nwant %#v", mapped, canonical)
	}
}

func TestMapRecordMalformedJSON(t *testing.T) {
	t.Run("array field falls back to empty", func(t *testing.T) {
		mapped, ok := MapRecord(TableScenarios, tabular.Record{"name": "x", "impactedParties": "{not json"})
		if !ok {
			t.Fatal("MapRecord returned ok=false")
		}
		parties, isArr := mapped["impactedParties"].([]any)
		if !isArr || len(parties) != 0 {
			t.Errorf("impactedParties = %#v, want empty array", mapped["impactedParties"])
		}
	})

	t.Run("optional chart is dropped", func(t *testing.T) {
		mapped, _ := MapRecord(TablePolls, tabular.Record{"pollster": "Voxmeter", "chartSummary": "{broken"})
		if _, exists := mapped["chartSummary"]; exists {
			t.Errorf("chartSummary = %#v, want absent", mapped["chartSummary"])
		}
	})

	t.Run("valid JSON string parses", func(t *testing.T) {
		mapped, _ := MapRecord(TableNationalOverview, tabular.Record{
			"partyProjections": `[{"party":"A","voteShare":24.1,"seatShare":24.6,"trend":-0.4}]`,
		})
		projections := mapped["partyProjections"].([]any)
		if len(projections) != 1 {
			t.Fatalf("partyProjections = %#v, want 1 entry", projections)
		}
	})
}

func TestMapRecordDefaults(t *testing.T) {
	t.Run("strings default empty, numbers default zero", func(t *testing.T) {
		mapped, _ := MapRecord(TableMunicipalitySnapshots, tabular.Record{})
		if mapped["slug"] != "" || mapped["voteShare"] != 0.0 {
			t.Errorf("defaults: slug=%v voteShare=%v", mapped["slug"], mapped["voteShare"])
		}
	})

	t.Run("non-numeric number field becomes NaN for the validator", func(t *testing.T) {
		mapped, _ := MapRecord(TableMunicipalitySnapshots, tabular.Record{"voteShare": "not-a-number"})
		n, isNum := mapped["voteShare"].(float64)
		if !isNum || !math.IsNaN(n) {
			t.Errorf("voteShare = %v (%T), want NaN", mapped["voteShare"], mapped["voteShare"])
		}
	})

	t.Run("blank timestamps default to now", func(t *testing.T) {
		mapped, _ := MapRecord(TableCurrentResults, tabular.Record{"lastPull": ""})
		if mapped["lastPull"] == "" {
			t.Error("lastPull stayed empty, want current instant")
		}
		polls, _ := MapRecord(TablePolls, tabular.Record{"pollster": "Megafon"})
		if polls["conductedAt"] == "" {
			t.Error("conductedAt stayed empty, want current instant")
		}
	})

	t.Run("methodology defaults to Unknown", func(t *testing.T) {
		mapped, _ := MapRecord(TablePolls, tabular.Record{"pollster": "Megafon"})
		if mapped["methodology"] != "Unknown" {
			t.Errorf("methodology = %v, want Unknown", mapped["methodology"])
		}
	})
}
