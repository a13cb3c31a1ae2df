package catalog

import (
	"errors"
	"reflect"
	"testing"
)

func TestExtractNestedPath(t *testing.T) {
	raw := []byte(`{
		"data": {
			"models": [
				{"publicName": "Alpha", "slug": "alpha-1"},
				{"publicName": "Beta", "slug": "beta-2"}
			]
		}
	}`)

	x := Extractor{ModelsPath: []string{"data", "models"}, IDPath: []string{"slug"}}
	got, err := x.Extract(raw)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := []Model{
		{ID: "alpha-1", Name: "Alpha"},
		{ID: "beta-2", Name: "Beta"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestExtractRootArrayWithFallbackKeys(t *testing.T) {
	raw := []byte(`[
		{"id": "m1", "name": "Model One"},
		{"model": "m2"},
		{"identifier": 42}
	]`)

	got, err := Extractor{}.Extract(raw)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := []Model{
		{ID: "m1", Name: "Model One"},
		{ID: "m2", Name: "m2"},
		{ID: "42", Name: "42"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestExtractSkipsMalformedRecords(t *testing.T) {
	raw := []byte(`[
		{"id": "good", "name": "Good"},
		"just a string",
		{"note": "no identifier here"},
		{"id": ""},
		{"id": {"nested": true}},
		{"id": "also-good"}
	]`)

	got, err := Extractor{}.Extract(raw)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 2 || got[0].ID != "good" || got[1].ID != "also-good" {
		t.Fatalf("got %+v", got)
	}
}

func TestExtractArrayIndexSegment(t *testing.T) {
	raw := []byte(`{"pages": [{"items": [{"id": "x"}]}]}`)
	x := Extractor{ModelsPath: []string{"pages", "0", "items"}}
	got, err := x.Extract(raw)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 1 || got[0].ID != "x" {
		t.Fatalf("got %+v", got)
	}
}

func TestExtractStructuralFailures(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		x    Extractor
	}{
		{"invalid document", `{not json`, Extractor{}},
		{"missing path segment", `{"data": {}}`, Extractor{ModelsPath: []string{"data", "models"}}},
		{"terminal not an array", `{"models": {"a": 1}}`, Extractor{ModelsPath: []string{"models"}}},
		{"path through scalar", `{"data": 3}`, Extractor{ModelsPath: []string{"data", "models"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.x.Extract([]byte(tc.raw))
			var xe *ExtractionError
			if !errors.As(err, &xe) {
				t.Fatalf("expected ExtractionError, got %v", err)
			}
		})
	}
}

func TestScalarStringCoercion(t *testing.T) {
	raw := []byte(`[{"id": true, "name": "Bool"}]`)
	got, err := Extractor{}.Extract(raw)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got[0].ID != "true" {
		t.Fatalf("id = %q", got[0].ID)
	}
}
