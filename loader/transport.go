package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/http2"
)

// Transport fetches the raw bytes of a resource.
// Implementations must honor ctx and must not retry.
type Transport interface {
	Fetch(ctx context.Context, key Key) ([]byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, key Key) ([]byte, error)

// Fetch calls f(ctx, key).
func (f TransportFunc) Fetch(ctx context.Context, key Key) ([]byte, error) { return f(ctx, key) }

// DefaultMaxBodyBytes caps a single response body.
const DefaultMaxBodyBytes = 32 << 20

// ErrBodyTooLarge is wrapped in a TransportError when a response exceeds
// HTTPOptions.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body too large")

// HTTPOptions configures HTTPTransport.
type HTTPOptions struct {
	// Client overrides the HTTP client. Nil builds one with an HTTP/2-enabled
	// transport.
	Client *http.Client
	// UserAgent is sent with every request when non-empty.
	UserAgent string
	// MaxBodyBytes caps the (decompressed) body; 0 => DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// HTTPTransport fetches resources with GET requests. It negotiates zstd and
// gzip content encodings and decodes them itself.
type HTTPTransport struct {
	client  *http.Client
	ua      string
	maxBody int64
}

// NewHTTPTransport builds an HTTPTransport. The default client has no
// overall timeout; the loader bounds each fetch through ctx.
func NewHTTPTransport(opt HTTPOptions) (*HTTPTransport, error) {
	client := opt.Client
	if client == nil {
		tr := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
		if err := http2.ConfigureTransport(tr); err != nil {
			return nil, fmt.Errorf("configure http2: %w", err)
		}
		client = &http.Client{Transport: tr}
	}
	maxBody := opt.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &HTTPTransport{client: client, ua: opt.UserAgent, maxBody: maxBody}, nil
}

// Fetch performs GET key and returns the decoded body.
func (t *HTTPTransport) Fetch(ctx context.Context, key Key) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(key), nil)
	if err != nil {
		return nil, &TransportError{Key: key, Err: err}
	}
	req.Header.Set("Accept", "image/*")
	req.Header.Set("Accept-Encoding", "zstd, gzip")
	if t.ua != "" {
		req.Header.Set("User-Agent", t.ua)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransportError{Key: key, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &TransportError{Key: key, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	body, err := t.decodeBody(resp)
	if err != nil {
		return nil, &TransportError{Key: key, Status: resp.StatusCode, Err: err}
	}
	return body, nil
}

func (t *HTTPTransport) decodeBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", enc)
	}

	b, err := io.ReadAll(io.LimitReader(r, t.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > t.maxBody {
		return nil, ErrBodyTooLarge
	}
	return b, nil
}

var _ Transport = (*HTTPTransport)(nil)
