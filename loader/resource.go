package loader

import "image"

// Key identifies a remote resource; in practice a URL.
type Key string

func (k Key) String() string { return string(k) }

// bytesPerPixel is the footprint assumed for a decoded RGBA pixel.
const bytesPerPixel = 4

// Resource is a decoded image held in memory.
type Resource struct {
	Key    Key
	Image  image.Image
	Format string // decoder name, e.g. "png", "jpeg", "webp"
	Width  int
	Height int
}

// Cost estimates the decoded memory footprint in bytes as
// width×height×4. It is never below 1.
func (r *Resource) Cost() int64 {
	if r == nil {
		return 1
	}
	c := int64(r.Width) * int64(r.Height) * bytesPerPixel
	if c < 1 {
		return 1
	}
	return c
}

// ResourceCost adapts Resource.Cost for cache.Options.Cost.
func ResourceCost(r *Resource) int64 { return r.Cost() }
