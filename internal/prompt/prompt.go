package prompt

import (
	"fmt"
	"sort"
	"strings"

	"go-vision-atlas/internal/atlas"
	"go-vision-atlas/pkg/models"
)

// taskDescriptions holds the canonical one-sentence instruction per
// analysis type.
var taskDescriptions = map[models.AnalysisType]string{
	models.AnalysisTypeSort:     "Rank the images according to the query and report each image's place in the ranking.",
	models.AnalysisTypeClassify: "Assign each image the category label that best matches the query.",
	models.AnalysisTypeDetect:   "Report for each image whether the subject of the query is present.",
	models.AnalysisTypeDescribe: "Describe the content of each image with respect to the query.",
	models.AnalysisTypeCompare:  "Compare the images against each other with respect to the query.",
}

// RenderAtlas builds the instruction for one composite-image model call.
// It is deterministic: the grid is walked in fixed label order and metadata
// keys are sorted.
func RenderAtlas(query string, analysisType models.AnalysisType, positionMap atlas.PositionMap, metadata map[string]map[string]string) string {
	var b strings.Builder
	reverse := positionMap.Reverse()

	b.WriteString("You are analyzing a single composite image that tiles several photos into a 3x3 grid.\n")
	b.WriteString("Grid cells are labeled row by row: A1 A2 A3 / B1 B2 B3 / C1 C2 C3.\n\n")

	b.WriteString("Grid layout:\n")
	for _, pos := range atlas.GridPositions {
		if _, occupied := reverse[pos]; occupied {
			fmt.Fprintf(&b, "- %s: image\n", pos)
		} else {
			fmt.Fprintf(&b, "- %s: empty\n", pos)
		}
	}
	b.WriteString("\n")

	b.WriteString("Task: ")
	b.WriteString(taskDescription(analysisType))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Query: %s\n", query)

	writeMetadata(&b, positionMap, metadata)

	b.WriteString("\nAnswer only the occupied cells; ignore empty cells entirely.\n")
	writeOutputContract(&b, "one entry per occupied grid cell, with \"position\" set to the cell label")

	return b.String()
}

// RenderSingle builds the instruction for one per-image model call
func RenderSingle(query string, analysisType models.AnalysisType, ref models.ImageRef) string {
	var b strings.Builder

	b.WriteString("You are analyzing a single image.\n\n")
	b.WriteString("Task: ")
	b.WriteString(taskDescription(analysisType))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Query: %s\n", query)

	if len(ref.Metadata) > 0 {
		b.WriteString("Image metadata:\n")
		for _, k := range sortedKeys(ref.Metadata) {
			fmt.Fprintf(&b, "- %s: %s\n", k, ref.Metadata[k])
		}
	}

	writeOutputContract(&b, "exactly one entry, with \"position\" set to \"A1\"")

	return b.String()
}

func taskDescription(analysisType models.AnalysisType) string {
	if desc, ok := taskDescriptions[analysisType]; ok {
		return desc
	}
	return taskDescriptions[models.AnalysisTypeDescribe]
}

func writeMetadata(b *strings.Builder, positionMap atlas.PositionMap, metadata map[string]map[string]string) {
	if len(metadata) == 0 {
		return
	}

	reverse := positionMap.Reverse()
	wroteHeader := false
	for _, pos := range atlas.GridPositions {
		id, occupied := reverse[pos]
		if !occupied {
			continue
		}
		meta := metadata[id]
		if len(meta) == 0 {
			continue
		}
		if !wroteHeader {
			b.WriteString("Per-cell metadata:\n")
			wroteHeader = true
		}
		pairs := make([]string, 0, len(meta))
		for _, k := range sortedKeys(meta) {
			pairs = append(pairs, fmt.Sprintf("%s=%s", k, meta[k]))
		}
		fmt.Fprintf(b, "- %s: %s\n", pos, strings.Join(pairs, ", "))
	}
}

func writeOutputContract(b *strings.Builder, resultsShape string) {
	b.WriteString("\nRespond with a JSON object and nothing else. The object must contain:\n")
	fmt.Fprintf(b, "- \"results\": an array with %s. Each entry must have a \"position\" and a \"classification\" string; \"confidence\" (a number between 0 and 1), \"reasoning\" and \"attributes\" are optional.\n", resultsShape)
	b.WriteString("- \"summary\": a short string summarizing the overall finding.\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
