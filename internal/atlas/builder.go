package atlas

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"time"

	apperrors "go-vision-atlas/internal/errors"
	"go-vision-atlas/pkg/models"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// ImageResolver turns an image reference into decoded pixels
type ImageResolver interface {
	Resolve(ctx context.Context, ref models.ImageRef) (image.Image, error)
}

// Artifact is the output of one atlas build
type Artifact struct {
	EncodedBytes  []byte
	PositionMap   PositionMap
	OriginalCount int
	GeneratedAt   time.Time
	ByteSize      int64
	Format        string
	// Recompressions counts size-budget re-encodes; at most one is attempted
	Recompressions int
}

// Builder composites up to nine images into a single 3x3 grid image
type Builder struct {
	resolver ImageResolver
	now      func() time.Time
}

// NewBuilder creates an atlas builder backed by the given resolver
func NewBuilder(resolver ImageResolver) *Builder {
	return &Builder{
		resolver: resolver,
		now:      time.Now,
	}
}

// Build resolves every input concurrently, tiles the cells in input order
// and encodes the canvas. Any single fetch or decode failure fails the
// whole build.
func (b *Builder) Build(ctx context.Context, images []models.ImageRef, opts BuildOptions) (*Artifact, error) {
	if len(images) == 0 {
		return nil, apperrors.NewValidationError("atlas build requires at least one image", nil)
	}
	if len(images) > MaxGridImages {
		return nil, apperrors.NewValidationError("atlas build accepts at most nine images", nil)
	}

	ids := make([]string, len(images))
	for i, ref := range images {
		ids[i] = ref.ID
	}
	positionMap, err := NewPositionMap(ids)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid image set", err)
	}

	// Resolve and scale every cell concurrently; the first failure cancels
	// the remaining fetches.
	cells := make([]image.Image, len(images))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range images {
		g.Go(func() error {
			img, err := b.resolver.Resolve(gctx, ref)
			if err != nil {
				return apperrors.NewFetchError(ref.ID, err)
			}
			cell, err := renderCell(img, opts.CellSize, opts.CellQuality)
			if err != nil {
				return apperrors.NewFetchError(ref.ID, err)
			}
			cells[i] = cell
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	canvas := newCanvas(opts.CellSize)
	for i := range cells {
		pos := positionMap[images[i].ID]
		row, col := pos.RowCol()
		dst := image.Rect(col*opts.CellSize, row*opts.CellSize, (col+1)*opts.CellSize, (row+1)*opts.CellSize)
		xdraw.Draw(canvas, dst, cells[i], cells[i].Bounds().Min, xdraw.Src)
	}

	encoded, err := encodeCanvas(canvas, opts.Format, opts.Quality)
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to encode atlas", err)
	}

	artifact := &Artifact{
		PositionMap:   positionMap,
		OriginalCount: len(images),
		GeneratedAt:   b.now(),
		Format:        opts.Format,
	}

	// One recompression pass when over budget; the result is accepted even
	// if it still exceeds the budget.
	if opts.MaxFileSize > 0 && int64(len(encoded)) > opts.MaxFileSize && opts.Format == "jpeg" {
		reduced := opts.Quality * 70 / 100
		if reduced < 20 {
			reduced = 20
		}
		recompressed, err := encodeCanvas(canvas, opts.Format, reduced)
		if err != nil {
			return nil, apperrors.NewProcessingError("failed to recompress atlas", err)
		}
		encoded = recompressed
		artifact.Recompressions = 1
	}

	artifact.EncodedBytes = encoded
	artifact.ByteSize = int64(len(encoded))
	return artifact, nil
}

// renderCell scales the image to cover a square cell, centered, then
// re-encodes it at a fixed cell quality so the final atlas quality setting
// only affects the last encode pass.
func renderCell(src image.Image, cellSize, cellQuality int) (image.Image, error) {
	cell := image.NewRGBA(image.Rect(0, 0, cellSize, cellSize))

	srcBounds := src.Bounds()
	srcW, srcH := srcBounds.Dx(), srcBounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, image.ErrFormat
	}

	// Cover fit: scale the largest centered crop with the cell's aspect
	// ratio onto the whole cell.
	crop := srcBounds
	if srcW > srcH {
		offset := (srcW - srcH) / 2
		crop = image.Rect(srcBounds.Min.X+offset, srcBounds.Min.Y, srcBounds.Min.X+offset+srcH, srcBounds.Max.Y)
	} else if srcH > srcW {
		offset := (srcH - srcW) / 2
		crop = image.Rect(srcBounds.Min.X, srcBounds.Min.Y+offset, srcBounds.Max.X, srcBounds.Min.Y+offset+srcW)
	}

	xdraw.CatmullRom.Scale(cell, cell.Bounds(), src, crop, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, cell, &jpeg.Options{Quality: cellQuality}); err != nil {
		return nil, err
	}
	reencoded, _, err := image.Decode(&buf)
	if err != nil {
		return nil, err
	}
	return reencoded, nil
}

// newCanvas allocates the full grid canvas with a neutral fill for cells
// that stay empty
func newCanvas(cellSize int) *image.RGBA {
	side := cellSize * 3
	canvas := image.NewRGBA(image.Rect(0, 0, side, side))
	fill := color.RGBA{R: 0xEE, G: 0xEE, B: 0xEE, A: 0xFF}
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			canvas.SetRGBA(x, y, fill)
		}
	}
	return canvas
}

func encodeCanvas(canvas image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case "png":
		if err := png.Encode(&buf, canvas); err != nil {
			return nil, err
		}
	default:
		if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
