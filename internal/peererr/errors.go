// Package peererr classifies the ways a distributed tree operation can
// fail so that handlers can log a clean, actionable line and drop the
// request, per the best-effort, no-retry error model the protocol
// handlers follow.
package peererr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind is one of the four failure classes the protocol handlers
// recognize. Every error that crosses a handler boundary is classified
// into exactly one of these before it is logged and dropped.
type Kind int

const (
	// Unknown is the zero value; Of returns it for errors peererr never
	// wrapped.
	Unknown Kind = iota
	// RoutingMiss means the DHT produced no provider for a block id or
	// for "root". A request that every provider candidate failed is a
	// TransportFailure.
	RoutingMiss
	// TransportFailure means a dial, request, response, publish, or
	// provide call on the Network port returned an error.
	TransportFailure
	// Malformed means a decoded wire message failed validation (an
	// unrecognized envelope tag, a key that doesn't parse, and so on).
	Malformed
	// StateViolation means local coordinator state made the request
	// impossible to satisfy: a migration that never completes, a block
	// id absent from both the local map and migrating set, and similar.
	StateViolation
)

func (k Kind) String() string {
	switch k {
	case RoutingMiss:
		return "routing_miss"
	case TransportFailure:
		return "transport_failure"
	case Malformed:
		return "malformed"
	case StateViolation:
		return "state_violation"
	default:
		return "unknown"
	}
}

// peerError pairs a Kind with the underlying cause, keeping the
// cockroachdb/errors stack trace attached so logs carry enough context
// to debug without retries.
type peerError struct {
	kind  Kind
	cause error
}

func (e *peerError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.cause)
}

func (e *peerError) Unwrap() error {
	return e.cause
}

// New builds a peererr of the given kind from a message, attaching a
// stack trace at the call site.
func New(kind Kind, msg string) error {
	return &peerError{kind: kind, cause: errors.NewWithDepth(1, msg)}
}

// Newf is New with fmt-style formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &peerError{kind: kind, cause: errors.NewWithDepthf(1, format, args...)}
}

// Wrap classifies an existing error as the given kind, preserving it as
// the unwrap chain's cause.
func Wrap(kind Kind, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &peerError{kind: kind, cause: errors.WrapWithDepth(1, cause, msg)}
}

// Wrapf is Wrap with fmt-style formatting.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &peerError{kind: kind, cause: errors.WrapWithDepthf(1, cause, format, args...)}
}

// Of reports the Kind an error was classified as, or Unknown if it was
// never wrapped by this package.
func Of(err error) Kind {
	var pe *peerError
	if errors.As(err, &pe) {
		return pe.kind
	}
	return Unknown
}

// Is reports whether err was classified as kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}
