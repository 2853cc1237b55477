package gatherer

import (
	"context"
	"errors"
)

// Status tells why a Result does or does not carry a value.
type Status int

const (
	// StatusOK means the value was gathered.
	StatusOK Status = iota

	// StatusUnavailable means there was no session to gather from.
	StatusUnavailable

	// StatusUnsupported means the session lacks the capability.
	StatusUnsupported

	// StatusFailed means the driver returned an error while gathering.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnavailable:
		return "unavailable"
	case StatusUnsupported:
		return "unsupported"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets Status appear as a string in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the outcome of a gathering operation. Value holds the zero value
// (or a placeholder, for Location) whenever Status is not StatusOK.
type Result[T any] struct {
	Value  T
	Status Status
	Err    error
}

// OK reports whether the value was gathered.
func (r Result[T]) OK() bool {
	return r.Status == StatusOK
}

// Retryable reports whether the failure was transient enough that the caller
// may try again on the same session.
func (r Result[T]) Retryable() bool {
	if r.Status != StatusFailed {
		return false
	}
	return !errors.Is(r.Err, ErrUnsupported) && !errors.Is(r.Err, context.Canceled)
}

func ok[T any](v T) Result[T] {
	return Result[T]{Value: v, Status: StatusOK}
}

// failed classifies err into a non-OK result carrying fallback as its value.
func failed[T any](fallback T, err error) Result[T] {
	status := StatusFailed
	if errors.Is(err, ErrUnsupported) {
		status = StatusUnsupported
	}
	return Result[T]{Value: fallback, Status: status, Err: err}
}
