package loader

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func newImageServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/plain.png":
			_, _ = w.Write(body)
		case "/gzip.png":
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(w)
			_, _ = gz.Write(body)
			_ = gz.Close()
		case "/zstd.png":
			w.Header().Set("Content-Encoding", "zstd")
			zw, _ := zstd.NewWriter(w)
			_, _ = zw.Write(body)
			_ = zw.Close()
		case "/ua":
			_, _ = w.Write([]byte(r.Header.Get("User-Agent")))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPTransport_Encodings(t *testing.T) {
	t.Parallel()

	body := pngBytes(t, 4, 4)
	srv := newImageServer(t, body)
	tr, err := NewHTTPTransport(HTTPOptions{Client: srv.Client()})
	if err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"/plain.png", "/gzip.png", "/zstd.png"} {
		got, err := tr.Fetch(context.Background(), Key(srv.URL+path))
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if !bytes.Equal(got, body) {
			t.Fatalf("%s: body mismatch", path)
		}
	}
}

func TestHTTPTransport_StatusError(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t, nil)
	tr, err := NewHTTPTransport(HTTPOptions{Client: srv.Client()})
	if err != nil {
		t.Fatal(err)
	}

	_, err = tr.Fetch(context.Background(), Key(srv.URL+"/missing.png"))
	var te *TransportError
	if !errors.As(err, &te) || te.Status != http.StatusNotFound {
		t.Fatalf("want 404 TransportError, got %v", err)
	}
}

func TestHTTPTransport_BodyLimitAndUserAgent(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t, pngBytes(t, 32, 32))
	tr, err := NewHTTPTransport(HTTPOptions{Client: srv.Client(), MaxBodyBytes: 16, UserAgent: "lazyfeed-test"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := tr.Fetch(context.Background(), Key(srv.URL+"/plain.png")); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("want ErrBodyTooLarge, got %v", err)
	}
	ua, err := tr.Fetch(context.Background(), Key(srv.URL+"/ua"))
	if err != nil || string(ua) != "lazyfeed-test" {
		t.Fatalf("want user agent echoed, got %q err=%v", ua, err)
	}
}

// End to end: HTTP transport + image decoder + cache behind the loader.
func TestLoader_WithHTTPTransport(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t, pngBytes(t, 5, 7))
	tr, err := NewHTTPTransport(HTTPOptions{Client: srv.Client()})
	if err != nil {
		t.Fatal(err)
	}
	l := New(Options{Cache: newTestCache(), Transport: tr})
	t.Cleanup(func() { _ = l.Close() })

	r, err := l.Get(context.Background(), Key(srv.URL+"/zstd.png"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Width != 5 || r.Height != 7 || r.Cost() != 5*7*4 {
		t.Fatalf("unexpected resource %dx%d cost=%d", r.Width, r.Height, r.Cost())
	}

	_, err = l.Get(context.Background(), Key(srv.URL+"/nope.png"))
	if !IsTransport(err) {
		t.Fatalf("want transport failure, got %v", err)
	}
}
