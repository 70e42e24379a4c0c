// Package ddserror implements the error taxonomy of spec.md §7:
// PreconditionNotMet, OutOfResources, SerializationError, and NotFound,
// as sentinel errors usable with errors.Is/errors.As.
//
// The teacher mostly reaches for plain fmt.Errorf/errors.New
// (controller/destination/endpoints_watcher.go:
// fmt.Errorf("Cannot unsubscribe from %s: not subscribed", service)); it
// does, however, map internal conditions onto gRPC's typed status codes
// at its RPC boundary (google.golang.org/grpc/codes), which this package
// borrows for the same purpose: PreconditionNotMet and OutOfResources
// are errors a transport layer built on this core (out of scope itself)
// needs to surface to a remote caller without re-inventing a code
// vocabulary.
package ddserror

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Sentinel errors for errors.Is comparisons. SerializationError and
// NotFound are handled locally per spec.md §7 (sample dropped, warning
// logged); PreconditionNotMet and OutOfResources are surfaced to the
// caller as return values.
var (
	ErrPreconditionNotMet = errors.New("precondition not met")
	ErrOutOfResources     = errors.New("out of resources")
	ErrSerialization      = errors.New("serialization error")
	ErrNotFound           = errors.New("not found")
)

// Error wraps one of the sentinels above with call-site context.
type Error struct {
	Sentinel error
	Context  string
}

func (e *Error) Error() string {
	if e.Context == "" {
		return e.Sentinel.Error()
	}
	return fmt.Sprintf("%s: %s", e.Sentinel.Error(), e.Context)
}

func (e *Error) Unwrap() error { return e.Sentinel }

// PreconditionNotMet builds an error for a violated caller invariant,
// e.g. creating an endpoint on a dropped participant.
func PreconditionNotMet(context string) error {
	return &Error{Sentinel: ErrPreconditionNotMet, Context: context}
}

// OutOfResources builds an error for a full or disconnected bounded
// channel (discovery command, notification, status).
func OutOfResources(context string) error {
	return &Error{Sentinel: ErrOutOfResources, Context: context}
}

// Serialization builds an error for a codec that rejected bytes.
func Serialization(context string) error {
	return &Error{Sentinel: ErrSerialization, Context: context}
}

// NotFound builds an error for a dispose-by-hash with an unknown hash,
// or a discovery update missing a required field.
func NotFound(context string) error {
	return &Error{Sentinel: ErrNotFound, Context: context}
}

// GRPCCode maps one of this package's sentinel errors to the gRPC
// status code a transport layer on top of this core should return.
// Errors that don't wrap a known sentinel map to codes.Unknown.
func GRPCCode(err error) codes.Code {
	switch {
	case errors.Is(err, ErrPreconditionNotMet):
		return codes.FailedPrecondition
	case errors.Is(err, ErrOutOfResources):
		return codes.ResourceExhausted
	case errors.Is(err, ErrSerialization):
		return codes.InvalidArgument
	case errors.Is(err, ErrNotFound):
		return codes.NotFound
	default:
		return codes.Unknown
	}
}
