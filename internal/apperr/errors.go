package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an expected failure so the transport boundary can map it
// to a response without inspecting messages.
type Kind string

const (
	// KindUnauthorized means no identity evidence was supplied at all.
	KindUnauthorized Kind = "unauthorized"
	// KindNotFound means evidence was supplied but nothing matched.
	KindNotFound Kind = "not_found"
	// KindInvalidToken covers missing, expired, inactive, and exhausted
	// tokens. The sub-reason is logged internally, never surfaced.
	KindInvalidToken Kind = "invalid_token"
	// KindConflict means a mutation lost an atomic race after its
	// precondition passed. Externally indistinguishable from KindInvalidToken.
	KindConflict Kind = "conflict"
	// KindUpstream means a collaborator errored or timed out.
	KindUpstream Kind = "upstream_failure"
	// KindInternal is anything unanticipated.
	KindInternal Kind = "internal"
)

// Error is a tagged failure. The wrapped cause is for logs only and must not
// reach response payloads.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error without a cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds a tagged error from a format string.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error. A nil err yields nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from err, defaulting to KindInternal for
// untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
