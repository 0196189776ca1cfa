package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/PabloG6/medscan-intellibus/internal/types"
)

const (
	uploadPromptText    = "Please upload a CT scan image so I can analyze it and provide structured findings."
	inferenceFailedText = "I couldn't analyze this image right now. Please try again in a moment or upload a different scan."
)

// clampPercentage maps non-finite values to 0 and bounds the rest to [0,100].
func clampPercentage(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}

func boxCaption(box BoundingBox) string {
	return fmt.Sprintf("%s (%.1f%%)", box.Label, clampPercentage(box.Confidence*100))
}

// BuildLabels converts normalized boxes into centre-point percentage labels.
func BuildLabels(a *Analysis) []types.ImageLabel {
	labels := make([]types.ImageLabel, 0, len(a.BoundingBoxes))
	for i, box := range a.BoundingBoxes {
		if len(box.Coordinates) != 4 {
			continue
		}
		x1, y1, x2, y2 := box.Coordinates[0], box.Coordinates[1], box.Coordinates[2], box.Coordinates[3]
		labels = append(labels, types.ImageLabel{
			ID:   fmt.Sprintf("bbox-%d", i),
			X:    clampPercentage((x1 + x2) / 2 * 100),
			Y:    clampPercentage((y1 + y2) / 2 * 100),
			Text: boxCaption(box),
		})
	}
	return labels
}

// BuildSummary renders the markdown summary shown as the assistant's text part.
func BuildSummary(a *Analysis) string {
	var lines []string
	lines = append(lines,
		fmt.Sprintf("**Classification:** %s (%.1f%% confidence)", a.Classification.Label, clampPercentage(a.Classification.Confidence*100)),
		fmt.Sprintf("**Description:** %s", a.Classification.Description),
	)
	if len(a.BoundingBoxes) > 0 {
		lines = append(lines, "", "**Detected Structures:**")
		for _, box := range a.BoundingBoxes {
			line := "• " + boxCaption(box)
			if len(box.Coordinates) == 4 {
				line += fmt.Sprintf(" at [%.2f, %.2f, %.2f, %.2f]", box.Coordinates[0], box.Coordinates[1], box.Coordinates[2], box.Coordinates[3])
			}
			lines = append(lines, line)
		}
	}
	lines = append(lines, "", fmt.Sprintf("**General Observations:** %s", a.GeneralObservations))
	return strings.Join(lines, "\n")
}
