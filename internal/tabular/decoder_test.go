package tabular

import (
	"errors"
	"testing"
)

func TestDecodeCSV(t *testing.T) {
	t.Run("header plus rows", func(t *testing.T) {
		records, err := DecodeCSV("slug,name,turnout\naarhus,Aarhus,84.2\nodense,Odense,81.9\n", CoerceNumeric)
		if err != nil {
			t.Fatalf("DecodeCSV() error = %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("got %d records, want 2", len(records))
		}
		if records[0]["slug"] != "aarhus" {
			t.Errorf("slug = %v, want aarhus", records[0]["slug"])
		}
		if records[0]["turnout"] != 84.2 {
			t.Errorf("turnout = %v (%T), want 84.2 float64", records[0]["turnout"], records[0]["turnout"])
		}
	})

	t.Run("blank lines skipped", func(t *testing.T) {
		records, err := DecodeCSV("a,b\n1,2\n\n3,4\n\n", CoerceNumeric)
		if err != nil {
			t.Fatalf("DecodeCSV() error = %v", err)
		}
		if len(records) != 2 {
			t.Errorf("got %d records, want 2", len(records))
		}
	})

	t.Run("numeric coercion is full-value only", func(t *testing.T) {
		records, err := DecodeCSV("code,count\n8000c,250\n", CoerceNumeric)
		if err != nil {
			t.Fatalf("DecodeCSV() error = %v", err)
		}
		if _, ok := records[0]["code"].(string); !ok {
			t.Errorf("code = %T, want string (partial number must not coerce)", records[0]["code"])
		}
		if records[0]["count"] != 250.0 {
			t.Errorf("count = %v, want 250", records[0]["count"])
		}
	})

	t.Run("CoerceNone keeps strings", func(t *testing.T) {
		records, err := DecodeCSV("n\n250\n", CoerceNone)
		if err != nil {
			t.Fatalf("DecodeCSV() error = %v", err)
		}
		if records[0]["n"] != "250" {
			t.Errorf("n = %v (%T), want string \"250\"", records[0]["n"], records[0]["n"])
		}
	})

	t.Run("BOM stripped from first header", func(t *testing.T) {
		records, err := DecodeCSV("\uFEFFslug\naarhus\n", CoerceNumeric)
		if err != nil {
			t.Fatalf("DecodeCSV() error = %v", err)
		}
		if records[0]["slug"] != "aarhus" {
			t.Errorf("record keys = %v, want slug", records[0])
		}
	})

	for _, tt := range []struct {
		name string
		text string
	}{
		{"empty text", ""},
		{"whitespace only", "  \n  "},
		{"header only", "a,b\n"},
		{"unbalanced quotes", "a,b\n\"broken,2\n1,2\n\"also broken"},
	} {
		t.Run(tt.name+" is malformed", func(t *testing.T) {
			if _, err := DecodeCSV(tt.text, CoerceNumeric); !errors.Is(err, ErrMalformedInput) {
				t.Errorf("DecodeCSV(%q) error = %v, want ErrMalformedInput", tt.text, err)
			}
		})
	}
}

func TestFromObjects(t *testing.T) {
	t.Run("passes through unchanged", func(t *testing.T) {
		records, err := FromObjects([]map[string]any{{"sampleSize": "250"}})
		if err != nil {
			t.Fatalf("FromObjects() error = %v", err)
		}
		if records[0]["sampleSize"] != "250" {
			t.Errorf("sampleSize = %v, want untouched string", records[0]["sampleSize"])
		}
	})

	t.Run("empty is malformed", func(t *testing.T) {
		if _, err := FromObjects(nil); !errors.Is(err, ErrMalformedInput) {
			t.Errorf("FromObjects(nil) error = %v, want ErrMalformedInput", err)
		}
	})
}
