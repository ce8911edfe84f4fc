package loader

import (
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/lazyfeed/cache"
)

// Defaults applied by New for zero-valued Options fields.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultMaxConcurrent = 8
)

// Options configures a Loader. Cache and Transport are required.
//   - nil Decoder        => ImageDecoder{}
//   - Timeout == 0       => DefaultTimeout (negative disables the timeout)
//   - MaxConcurrent <= 0 => DefaultMaxConcurrent
//   - nil Metrics        => NoopMetrics
//   - nil Logger         => zap.NewNop()
type Options struct {
	Cache     cache.Cache[Key, *Resource]
	Transport Transport
	Decoder   Decoder

	// Timeout bounds one fetch+decode. Expiry settles the request with a
	// TransportError wrapping context.DeadlineExceeded.
	Timeout time.Duration

	// MaxConcurrent bounds transport calls running at once across keys.
	MaxConcurrent int

	Metrics Metrics
	Logger  *zap.Logger
}

// Metrics exposes loader-level observability hooks.
type Metrics interface {
	// FetchDone is called once per settled fetch; kind is "" on success,
	// otherwise "transport" or "decode".
	FetchDone(d time.Duration, kind string)
	// Joined is called when a Get attaches to an in-flight request.
	Joined()
	// InFlight reports the number of keys currently being fetched.
	InFlight(n int)
}

// NoopMetrics is the default Metrics implementation; it does nothing.
type NoopMetrics struct{}

func (NoopMetrics) FetchDone(time.Duration, string) {}
func (NoopMetrics) Joined()                         {}
func (NoopMetrics) InFlight(int)                    {}

var _ Metrics = NoopMetrics{}
