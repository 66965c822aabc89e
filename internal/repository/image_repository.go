package repository

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"go-vision-atlas/internal/storage"
	"go-vision-atlas/pkg/models"
)

// imageRepository resolves references through an HTTP fetcher for URLs and
// base64 decoding for inline data
type imageRepository struct {
	fetcher storage.ImageFetcher
}

// NewImageRepository creates a repository over the given fetcher
func NewImageRepository(fetcher storage.ImageFetcher) ImageRepository {
	return &imageRepository{fetcher: fetcher}
}

// ResolveBytes returns the raw image bytes and a sniffed mime type
func (r *imageRepository) ResolveBytes(ctx context.Context, ref models.ImageRef) ([]byte, string, error) {
	if err := r.ValidateRef(ref); err != nil {
		return nil, "", err
	}

	var data []byte
	if ref.InlineData != "" {
		decoded, err := decodeInline(ref.InlineData)
		if err != nil {
			return nil, "", fmt.Errorf("invalid inline data for image %q: %w", ref.ID, err)
		}
		data = decoded
	} else {
		fetched, err := r.fetcher.FetchImage(ctx, ref.URL)
		if err != nil {
			return nil, "", err
		}
		data = fetched
	}

	return data, http.DetectContentType(data), nil
}

// Resolve returns the decoded image for a reference
func (r *imageRepository) Resolve(ctx context.Context, ref models.ImageRef) (image.Image, error) {
	data, _, err := r.ResolveBytes(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return img, nil
}

// ValidateRef checks the reference carries an id and exactly one source
func (r *imageRepository) ValidateRef(ref models.ImageRef) error {
	if ref.ID == "" {
		return ErrMissingID
	}
	if ref.URL == "" && ref.InlineData == "" {
		return ErrNoSource
	}
	if ref.URL != "" && ref.InlineData != "" {
		return ErrAmbiguousSource
	}
	return nil
}

// decodeInline accepts standard and URL-safe base64, with or without a
// data-URI prefix
func decodeInline(inline string) ([]byte, error) {
	payload := inline
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 {
			return nil, fmt.Errorf("malformed data URI")
		}
		payload = payload[idx+1:]
	}

	if decoded, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return decoded, nil
	}
	return base64.URLEncoding.DecodeString(payload)
}
