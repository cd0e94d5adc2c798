// Package thumbnail turns uploaded images into small JPEG previews.
package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Encoder produces thumbnails bounded by MaxWidth x MaxHeight at the given
// JPEG quality. The zero value is not usable; use New.
type Encoder struct {
	maxWidth  int
	maxHeight int
	quality   int
}

// New returns an Encoder with the given bounds and 0-100 JPEG quality.
func New(maxWidth, maxHeight, quality int) *Encoder {
	return &Encoder{maxWidth: maxWidth, maxHeight: maxHeight, quality: quality}
}

// Encode decodes src, flattens any transparency onto a white background,
// downscales so both dimensions fit the configured bounds while preserving
// aspect ratio (never upscaling), and re-encodes as JPEG.
func (e *Encoder) Encode(src []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}

	// JPEG has no alpha channel, so palette/grayscale/alpha inputs are
	// composited onto solid white before encoding.
	bounds := img.Bounds()
	canvas := imaging.New(bounds.Dx(), bounds.Dy(), color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	flat := imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)

	thumb := imaging.Fit(flat, e.maxWidth, e.maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(e.quality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
