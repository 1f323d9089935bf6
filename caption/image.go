package caption

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"
)

// ImageConfig bounds the image sent upstream.
type ImageConfig struct {
	// MaxSide is the largest allowed width or height in pixels. Zero disables
	// downscaling.
	MaxSide int

	// MinSide is the smallest allowed width or height in pixels, for models
	// that prefer larger inputs. Zero disables upscaling.
	MinSide int

	// JPEGQuality is the encoder quality, 1-100.
	JPEGQuality int
}

// DefaultImageConfig returns the bounds used for the hosted BLIP model.
func DefaultImageConfig() ImageConfig {
	return ImageConfig{
		MaxSide:     512,
		MinSide:     0,
		JPEGQuality: 85,
	}
}

// Fit rescales img, preserving aspect ratio, so that its longer side is at
// most MaxSide and its shorter side at least MinSide. Images already inside
// the bounds are returned unchanged.
func (c ImageConfig) Fit(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return img
	}

	longer, shorter := max(w, h), min(w, h)
	scale := 1.0
	switch {
	case c.MaxSide > 0 && longer > c.MaxSide:
		scale = float64(c.MaxSide) / float64(longer)
	case c.MinSide > 0 && shorter < c.MinSide:
		scale = float64(c.MinSide) / float64(shorter)
		// Never let upscaling push the longer side past MaxSide.
		if c.MaxSide > 0 && float64(longer)*scale > float64(c.MaxSide) {
			scale = float64(c.MaxSide) / float64(longer)
		}
	}
	if scale == 1.0 {
		return img
	}

	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Encode fits img into the bounds and encodes it as JPEG.
func (c ImageConfig) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	quality := c.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, c.Fit(img), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
