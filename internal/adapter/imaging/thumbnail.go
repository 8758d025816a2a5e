// Package imaging produces the downscaled previews stored alongside image
// clips.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxThumbnailSize is the longest edge of a generated thumbnail, in pixels.
	MaxThumbnailSize = 256

	// MaxSourcePixels caps the decoded size of a source image. A small
	// compressed file can describe a huge canvas.
	MaxSourcePixels = 64 << 20
)

// Thumbnail decodes an encoded image (PNG, JPEG, GIF, WebP or BMP) and
// returns a PNG whose longest edge is at most MaxThumbnailSize. Aspect
// ratio is preserved and small images are never upscaled. Images larger
// than MaxSourcePixels are rejected before any pixel data is decoded.
func Thumbnail(data []byte) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > MaxSourcePixels {
		return nil, fmt.Errorf("%s image %dx%d exceeds %d pixels", format, cfg.Width, cfg.Height, MaxSourcePixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), MaxThumbnailSize)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("decode image: empty bounds %v", b)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

func fitWithin(w, h, max int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}
