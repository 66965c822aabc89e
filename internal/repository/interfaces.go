package repository

import (
	"context"
	"image"

	"go-vision-atlas/pkg/models"
)

// ImageRepository resolves image references to raw bytes or decoded pixels
type ImageRepository interface {
	// ResolveBytes returns the raw encoded bytes and their mime type
	ResolveBytes(ctx context.Context, ref models.ImageRef) ([]byte, string, error)

	// Resolve returns the decoded image
	Resolve(ctx context.Context, ref models.ImageRef) (image.Image, error)

	// ValidateRef checks that the reference carries exactly one usable source
	ValidateRef(ref models.ImageRef) error
}
