package loader

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/IvanBrykalov/lazyfeed/cache"
)

// pngBytes encodes a w×h opaque PNG.
func pngBytes(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakeTransport serves canned bodies/errors and counts calls per key.
// When gate is non-nil every Fetch blocks until it is closed.
type fakeTransport struct {
	mu     sync.Mutex
	bodies map[Key][]byte
	errs   map[Key]error
	calls  map[Key]int
	total  atomic.Int32
	gate   chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		bodies: make(map[Key][]byte),
		errs:   make(map[Key]error),
		calls:  make(map[Key]int),
	}
}

func (f *fakeTransport) Fetch(ctx context.Context, key Key) ([]byte, error) {
	f.total.Add(1)
	f.mu.Lock()
	f.calls[key]++
	body, err, gate := f.bodies[key], f.errs[key], f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *fakeTransport) callsFor(key Key) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeTransport) set(key Key, body []byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[key], f.errs[key] = body, err
}

func newTestCache() cache.Cache[Key, *Resource] {
	return cache.New[Key, *Resource](cache.Options[Key, *Resource]{
		CountLimit: 64,
		MaxCost:    16 << 20,
		Cost:       ResourceCost,
	})
}
