package loader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG

	_ "golang.org/x/image/bmp"  // register BMP
	_ "golang.org/x/image/webp" // register WebP
)

// Decoder turns fetched bytes into a Resource. Malformed input is an
// ordinary error, never a panic.
type Decoder interface {
	Decode(key Key, data []byte) (*Resource, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(key Key, data []byte) (*Resource, error)

// Decode calls f(key, data).
func (f DecoderFunc) Decode(key Key, data []byte) (*Resource, error) { return f(key, data) }

// DefaultMaxPixels bounds width×height accepted by ImageDecoder.
const DefaultMaxPixels = 64 << 20

var (
	ErrEmptyBody     = errors.New("empty body")
	ErrTooManyPixels = errors.New("image dimensions exceed limit")
)

// ImageDecoder decodes PNG, JPEG, GIF, BMP and WebP images. The header is
// inspected first so oversized images are rejected before allocation.
type ImageDecoder struct {
	MaxPixels int64 // 0 => DefaultMaxPixels
}

// Decode implements Decoder.
func (d ImageDecoder) Decode(key Key, data []byte) (res *Resource, err error) {
	if len(data) == 0 {
		return nil, ErrEmptyBody
	}
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("decoder panic: %v", p)
		}
	}()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	limit := d.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > limit {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &Resource{
		Key:    key,
		Image:  img,
		Format: format,
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

var _ Decoder = ImageDecoder{}
