package screen

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
)

const (
	FormatAuto = "auto"
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// complexityThreshold splits text-heavy screens (PNG) from photo-like
// ones (JPEG).
const complexityThreshold = 0.3

// Complexity is the mean per-pixel colour deviation from grey, scaled by
// 1/255. Every 4th pixel in each direction is sampled.
func Complexity(img image.Image) float64 {
	b := img.Bounds()
	var total float64
	var n int
	for y := b.Min.Y; y < b.Max.Y; y += 4 {
		for x := b.Min.X; x < b.Max.X; x += 4 {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r, g, bl := float64(r16>>8), float64(g16>>8), float64(b16>>8)
			gray := (r + g + bl) / 3
			total += ((r-gray)*(r-gray) + (g-gray)*(g-gray) + (bl-gray)*(bl-gray)) / 3
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n) / 255
}

// ChooseFormat resolves "auto" by complexity. Anything else is returned
// unchanged.
func ChooseFormat(img image.Image, format string) string {
	if format != FormatAuto && format != "" {
		return format
	}
	if Complexity(img) < complexityThreshold {
		return FormatPNG
	}
	return FormatJPEG
}

// Encode writes img as format ("png" or "jpeg").
func Encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case FormatJPEG:
		if quality <= 0 || quality > 100 {
			quality = 95
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown image format %q", format)
	}
	return buf.Bytes(), nil
}

// Shrink halves the width (keeping aspect) until the encoding fits in
// maxBytes or the image gets too small to be useful.
func Shrink(img image.Image, format string, quality, maxBytes int) ([]byte, image.Image, error) {
	data, err := Encode(img, format, quality)
	if err != nil || maxBytes <= 0 {
		return data, img, err
	}
	for len(data) > maxBytes {
		w := uint(img.Bounds().Dx() / 2)
		if w < 320 {
			return nil, img, fmt.Errorf("image is %d bytes at minimum size, limit %d", len(data), maxBytes)
		}
		img = resize.Resize(w, 0, img, resize.Lanczos3)
		if data, err = Encode(img, format, quality); err != nil {
			return nil, img, err
		}
	}
	return data, img, nil
}
