package loader

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Get and Prefetch after Close.
var ErrClosed = errors.New("loader: closed")

// FetchError is the single failure outcome delivered to callers of Get.
// Err is a *TransportError or a *DecodeError.
type FetchError struct {
	Key Key
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.Key, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// TransportError reports a failure to obtain the raw bytes: a network
// error, a non-2xx HTTP status or a fetch timeout.
type TransportError struct {
	Key    Key
	Status int // HTTP status when the server answered, 0 otherwise
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports bytes that could not be decoded into a Resource.
type DecodeError struct {
	Key Key
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// IsTransport reports whether err carries a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsDecode reports whether err carries a *DecodeError.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// failureKind labels an error for metrics.
func failureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsDecode(err):
		return "decode"
	default:
		return "transport"
	}
}
