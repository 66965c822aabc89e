package parser

import (
	"strings"
	"testing"

	"go-vision-atlas/internal/atlas"
)

func mustPositionMap(t *testing.T, ids ...string) atlas.PositionMap {
	t.Helper()
	pm, err := atlas.NewPositionMap(ids)
	if err != nil {
		t.Fatalf("Failed to build position map: %v", err)
	}
	return pm
}

func TestParse_WholeBodyJSON(t *testing.T) {
	pm := mustPositionMap(t, "a", "b", "c")
	raw := `{"results":[{"position":"A2","classification":"brightest"}],"summary":"done"}`

	result := Parse(raw, pm)

	if result.Degraded {
		t.Error("Expected the structured path")
	}
	if len(result.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(result.Results))
	}
	if result.Results[0].ImageID != "b" {
		t.Errorf("Expected A2 to map to image 'b', got %q", result.Results[0].ImageID)
	}
	if result.Results[0].Classification != "brightest" {
		t.Errorf("Expected classification 'brightest', got %q", result.Results[0].Classification)
	}
	if result.Summary != "done" {
		t.Errorf("Expected summary 'done', got %q", result.Summary)
	}
}

func TestParse_FencedJSONBlock(t *testing.T) {
	pm := mustPositionMap(t, "x", "y", "z")
	raw := "Here is my analysis:\n```json\n" +
		`{"results":[` +
		`{"position":"A1","classification":"dog","confidence":0.9},` +
		`{"position":"A2","classification":"cat","reasoning":"whiskers"},` +
		`{"position":"A3","classification":"bird","attributes":{"color":"red"}}` +
		`],"summary":"three animals"}` +
		"\n```\nLet me know if you need more."

	result := Parse(raw, pm)

	if result.Degraded {
		t.Error("Expected the structured path")
	}
	if len(result.Results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(result.Results))
	}

	byID := map[string]string{}
	for _, r := range result.Results {
		byID[r.ImageID] = r.Classification
	}
	expected := map[string]string{"x": "dog", "y": "cat", "z": "bird"}
	for id, classification := range expected {
		if byID[id] != classification {
			t.Errorf("Expected %s -> %q, got %q", id, classification, byID[id])
		}
	}
	if result.Summary != "three animals" {
		t.Errorf("Expected summary 'three animals', got %q", result.Summary)
	}
}

func TestParse_UnknownPositionRetained(t *testing.T) {
	pm := mustPositionMap(t, "only")
	raw := `{"results":[{"position":"A1","classification":"ok"},{"position":"C3","classification":"ghost"}],"summary":"s"}`

	result := Parse(raw, pm)

	if len(result.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(result.Results))
	}
	if result.Results[1].ImageID != UnknownImageID {
		t.Errorf("Expected unmapped position tagged %q, got %q", UnknownImageID, result.Results[1].ImageID)
	}
}

func TestParse_ConfidenceClamped(t *testing.T) {
	pm := mustPositionMap(t, "a")

	result := Parse(`{"results":[{"position":"A1","classification":"c","confidence":1.7}],"summary":"s"}`, pm)
	if result.Results[0].Confidence != 1 {
		t.Errorf("Expected confidence clamped to 1, got %f", result.Results[0].Confidence)
	}

	result = Parse(`{"results":[{"position":"A1","classification":"c","confidence":-0.3}],"summary":"s"}`, pm)
	if result.Results[0].Confidence != 0 {
		t.Errorf("Expected confidence clamped to 0, got %f", result.Results[0].Confidence)
	}
}

func TestParse_FallbackPositionTokens(t *testing.T) {
	pm := mustPositionMap(t, "a", "b")
	raw := "The image at A1 shows a sunny beach.\nA2: a crowded market square."

	result := Parse(raw, pm)

	if !result.Degraded {
		t.Error("Expected the fallback path")
	}
	if len(result.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(result.Results))
	}
	for _, r := range result.Results {
		if r.Confidence != 0.8 {
			t.Errorf("Expected fallback confidence 0.8, got %f", r.Confidence)
		}
	}
	if result.Results[0].ImageID != "a" || result.Results[1].ImageID != "b" {
		t.Errorf("Expected fallback results mapped to a and b, got %q and %q",
			result.Results[0].ImageID, result.Results[1].ImageID)
	}
}

func TestParse_NoJSONNoTokens(t *testing.T) {
	pm := mustPositionMap(t, "a")
	raw := strings.Repeat("the model rambled on without any structure whatsoever ", 10)

	result := Parse(raw, pm)

	if len(result.Results) != 0 {
		t.Errorf("Expected no results, got %d", len(result.Results))
	}
	if result.Summary == "" {
		t.Error("Expected a non-empty summary")
	}
	if len(result.Summary) > 210 {
		t.Errorf("Expected a truncated summary, got %d characters", len(result.Summary))
	}
	if !strings.HasPrefix(result.Summary, "the model rambled") {
		t.Errorf("Expected summary to be a prefix of the raw text, got %q", result.Summary)
	}
}

func TestParse_EmptyInputNeverPanics(t *testing.T) {
	pm := mustPositionMap(t, "a")

	for _, raw := range []string{"", "   ", "\n\n", "{", "```json\n{broken\n```", "null", "[]"} {
		result := Parse(raw, pm)
		if result.Summary == "" {
			t.Errorf("Input %q: expected a non-empty summary", raw)
		}
	}
}

func TestParse_MalformedEntryFallsBack(t *testing.T) {
	pm := mustPositionMap(t, "a", "b")
	// Second entry is missing a classification, so the structured path is
	// rejected as a whole.
	raw := `{"results":[{"position":"A1","classification":"fine"},{"position":"A2"}],"summary":"s"}`

	result := Parse(raw, pm)
	if !result.Degraded {
		t.Error("Expected the fallback path for a partially valid structure")
	}
}
