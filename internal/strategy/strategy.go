package strategy

import (
	"fmt"

	"go-vision-atlas/pkg/models"
)

// DetailLevel is the image-detail hint forwarded to the vision model
type DetailLevel string

const (
	DetailLow  DetailLevel = "low"
	DetailHigh DetailLevel = "high"
)

// Kind is the closed set of processing strategies
type Kind int

const (
	// KindIndividual processes one model call per image
	KindIndividual Kind = iota
	// KindAtlas merges the images into one composite and calls the model once
	KindAtlas
)

// Decision is the outcome of strategy selection for one request
type Decision struct {
	Kind   Kind
	Detail DetailLevel
	Reason string
}

// UseAtlas reports whether the atlas path was selected
func (d Decision) UseAtlas() bool {
	return d.Kind == KindAtlas
}

// Selector decides atlas-vs-individual processing per request
type Selector struct {
	atlasThreshold int
}

// NewSelector creates a selector that switches to the atlas path at the
// given image count
func NewSelector(atlasThreshold int) *Selector {
	if atlasThreshold < 1 {
		atlasThreshold = 3
	}
	return &Selector{atlasThreshold: atlasThreshold}
}

// Decide picks a strategy from the image count, the explicit override flag
// and the caller's quality level. It is a pure function and always returns
// a decision.
func (s *Selector) Decide(imageCount int, forceAtlas bool, quality models.QualityLevel) Decision {
	if forceAtlas {
		// The override always pins high detail, regardless of quality level.
		return Decision{
			Kind:   KindAtlas,
			Detail: DetailHigh,
			Reason: "atlas forced by request options",
		}
	}

	if imageCount >= s.atlasThreshold {
		detail := DetailHigh
		if quality == models.QualityFast {
			detail = DetailLow
		}
		return Decision{
			Kind:   KindAtlas,
			Detail: detail,
			Reason: fmt.Sprintf("image count %d meets atlas threshold %d", imageCount, s.atlasThreshold),
		}
	}

	return Decision{
		Kind:   KindIndividual,
		Detail: DetailHigh,
		Reason: fmt.Sprintf("image count %d below atlas threshold %d", imageCount, s.atlasThreshold),
	}
}
