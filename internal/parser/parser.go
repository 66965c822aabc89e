package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"go-vision-atlas/internal/atlas"
	"go-vision-atlas/pkg/models"
)

const (
	// fallbackConfidence is assigned to entries recovered by the heuristic
	// extractor
	fallbackConfidence = 0.8
	// summaryPrefixLen bounds the raw-text summary produced when nothing
	// parseable is found
	summaryPrefixLen = 200
	// UnknownImageID tags entries whose position maps to no input image
	UnknownImageID = "unknown"
)

var (
	fencedBlockRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	positionTokenRe = regexp.MustCompile(`\b([A-C][1-3])\b[:\-.\s]*([^\n]*)`)
)

// structuredResponse is the shape the prompt's output contract asks for
type structuredResponse struct {
	Results []structuredEntry `json:"results"`
	Summary string            `json:"summary"`
}

type structuredEntry struct {
	Position       string            `json:"position"`
	Classification string            `json:"classification"`
	Confidence     *float64          `json:"confidence,omitempty"`
	Reasoning      string            `json:"reasoning,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

// Result is the parsed outcome of one model response
type Result struct {
	Results []models.PerImageResult
	Summary string
	// Degraded is set when the structured path failed and the heuristic
	// extractor produced the results
	Degraded bool
}

// Parse extracts per-position results from a raw model response. It never
// fails: when the structured path cannot produce results, a best-effort
// heuristic extraction runs instead, at worst yielding an empty result set
// with a truncated-text summary.
func Parse(raw string, positionMap atlas.PositionMap) Result {
	if structured, ok := parseStructured(raw, positionMap); ok {
		return structured
	}
	return parseFallback(raw, positionMap)
}

// parseStructured locates a JSON object in the whole body or inside a
// fenced code block and validates it against the expected shape
func parseStructured(raw string, positionMap atlas.PositionMap) (Result, bool) {
	candidate := strings.TrimSpace(raw)

	var parsed structuredResponse
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		match := fencedBlockRe.FindStringSubmatch(raw)
		if match == nil {
			return Result{}, false
		}
		if err := json.Unmarshal([]byte(match[1]), &parsed); err != nil {
			return Result{}, false
		}
	}

	if len(parsed.Results) == 0 && parsed.Summary == "" {
		return Result{}, false
	}

	reverse := positionMap.Reverse()
	results := make([]models.PerImageResult, 0, len(parsed.Results))
	for _, entry := range parsed.Results {
		pos := atlas.GridPosition(strings.ToUpper(strings.TrimSpace(entry.Position)))
		if !pos.Valid() || entry.Classification == "" {
			// One malformed entry invalidates the structured path; the
			// fallback extractor deals with partially valid output.
			return Result{}, false
		}
		results = append(results, models.PerImageResult{
			ImageID:        imageIDFor(pos, reverse),
			Classification: entry.Classification,
			Confidence:     clampConfidence(entry.Confidence),
			Reasoning:      entry.Reasoning,
			Attributes:     entry.Attributes,
		})
	}

	summary := parsed.Summary
	if summary == "" {
		summary = "analysis complete"
	}
	return Result{Results: results, Summary: summary}, true
}

// parseFallback scans for grid-position tokens followed by descriptive text
func parseFallback(raw string, positionMap atlas.PositionMap) Result {
	reverse := positionMap.Reverse()
	results := []models.PerImageResult{}

	seen := map[atlas.GridPosition]bool{}
	for _, match := range positionTokenRe.FindAllStringSubmatch(raw, -1) {
		pos := atlas.GridPosition(match[1])
		if seen[pos] {
			continue
		}
		text := strings.TrimSpace(match[2])
		if text == "" {
			continue
		}
		seen[pos] = true
		results = append(results, models.PerImageResult{
			ImageID:        imageIDFor(pos, reverse),
			Classification: text,
			Confidence:     fallbackConfidence,
		})
	}

	if len(results) == 0 {
		return Result{
			Results:  results,
			Summary:  truncatedSummary(raw),
			Degraded: true,
		}
	}
	return Result{
		Results:  results,
		Summary:  "results recovered from unstructured model output",
		Degraded: true,
	}
}

func imageIDFor(pos atlas.GridPosition, reverse map[atlas.GridPosition]string) string {
	if id, ok := reverse[pos]; ok {
		return id
	}
	return UnknownImageID
}

func clampConfidence(confidence *float64) float64 {
	if confidence == nil {
		return 0
	}
	c := *confidence
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func truncatedSummary(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "model returned no parseable output"
	}
	if len(text) > summaryPrefixLen {
		return text[:summaryPrefixLen] + "..."
	}
	return text
}
