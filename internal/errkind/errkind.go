// Package errkind defines the error taxonomy shared across the processing
// core: every component tags its failures with one of these kinds so the
// retry executor, the pipeline orchestrator, and the observability layer can
// make uniform decisions without inspecting provider-specific error types.
package errkind

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is one tag from the error taxonomy.
type Kind string

const (
	// Validation covers config load failures and schema checks. Fatal at
	// startup; fail-soft for per-document schema validation.
	Validation Kind = "validation"
	// DuplicateHash is raised by the document store when a hash collides
	// with a live row. Not an error outcome, but classified here so callers
	// can treat it uniformly with errors.Is.
	DuplicateHash Kind = "duplicate_hash"
	// Transient covers 429/5xx/network/timeout failures from the LLM,
	// vector store, or embedding API. Retryable.
	Transient Kind = "transient"
	// Permanent covers 4xx client errors, auth failures, and malformed
	// requests. Not retryable.
	Permanent Kind = "permanent"
	// CircuitOpen is raised by the LLM client's breaker while open.
	CircuitOpen Kind = "circuit_open"
	// CompensationNeeded tags an error that triggered a compensating
	// transaction rollback; the original error kind is preserved alongside.
	CompensationNeeded Kind = "compensation_needed"
	// Cancelled covers deadline expiry and explicit shutdown.
	Cancelled Kind = "cancelled"
	// Internal covers invariant breaches — bugs, not environment failures.
	Internal Kind = "internal"
)

// Error wraps an underlying error with a Kind. Components construct these
// with New or Wrap rather than returning bare errors, so callers can recover
// the kind with errors.As.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a Kind-tagged error with no underlying cause.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags err with kind, preserving it as the unwrap target.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind tagged on err, or "" if err is not a tagged
// *Error. Used by components that need to branch on kind without a full
// errors.As.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// retryableSubstrings and permanentSubstrings are the retry-eligibility
// table: message substrings recognized when a provider error has no typed
// status. Order matters: first match wins.
var retryableSubstrings = []string{
	"rate limit", "429", "too many requests",
	"timeout", "deadline exceeded",
	"connection reset", "connection refused", "no such host", "dns",
	"503", "502", "504", "500", "server error", "internal server error",
	"temporarily unavailable",
}

var permanentSubstrings = []string{
	"400", "401", "403", "404",
	"unauthorized", "forbidden", "not found", "bad request",
	"invalid api key", "invalid_request",
}

// ClassifyMessage applies the message-substring fallback classification
// described in the component design when no typed error kind is available.
// Returns "" if the message matches neither table.
func ClassifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	for _, s := range permanentSubstrings {
		if strings.Contains(lower, s) {
			return Permanent
		}
	}
	for _, s := range retryableSubstrings {
		if strings.Contains(lower, s) {
			return Transient
		}
	}
	return ""
}

// Classify returns the Kind of err: a tagged *Error's Kind if present,
// otherwise the message-substring fallback, otherwise "" (unknown, treated
// as non-retryable by the retry executor).
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	if k := KindOf(err); k != "" {
		return k
	}
	return ClassifyMessage(err.Error())
}
