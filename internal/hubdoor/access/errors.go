package access

import (
	"errors"
	"fmt"
)

// Kind classifies why a door-open request did not complete. Adapters map a
// Kind to a transport status without looking at the reason text.
type Kind int

const (
	// KindMalformed: the request is missing or has unparseable fields.
	KindMalformed Kind = iota + 1
	// KindUnauthorized: the request is well formed but the claim is not honored.
	KindUnauthorized
	// KindUpstream: a collaborator (chat platform, chain RPC) failed.
	KindUpstream
	// KindConfig: the server is missing configuration it needs.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindUnauthorized:
		return "unauthorized"
	case KindUpstream:
		return "upstream"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error carries a Kind and a human-readable reason. Err, when set, is the
// sentinel or cause so callers can still use errors.Is.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Reason {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Malformed wraps err as a KindMalformed error.
func Malformed(err error) *Error {
	return &Error{Kind: KindMalformed, Reason: err.Error(), Err: err}
}

// Unauthorized wraps err as a KindUnauthorized error.
func Unauthorized(err error) *Error {
	return &Error{Kind: KindUnauthorized, Reason: err.Error(), Err: err}
}

// Upstream wraps err as a KindUpstream error with the given reason.
func Upstream(reason string, err error) *Error {
	return &Error{Kind: KindUpstream, Reason: reason, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ReasonOf returns the human-readable reason of err.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
