// Package compensation implements a compensating-transaction scope: a
// sequence of external side-effects followed by a local commit, with
// registered undo handlers run in reverse order on any failure. The original
// error is always the one that surfaces; a compensation failure is recorded
// but never replaces it.
package compensation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/walksalot/docpipe/internal/errkind"
)

// HandlerStatus is the outcome of running one compensation handler.
type HandlerStatus string

const (
	HandlerRan    HandlerStatus = "ran"
	HandlerFailed HandlerStatus = "failed"
)

// HandlerResult is the audit record of one compensation handler's execution.
type HandlerResult struct {
	Name   string
	RanAt  time.Time
	Status HandlerStatus
	Err    error
}

// TransactionStatus is the terminal state recorded for a scope.
type TransactionStatus string

const (
	StatusSuccess             TransactionStatus = "success"
	StatusFailed              TransactionStatus = "failed"
	StatusCompensated         TransactionStatus = "compensated"
	StatusCompensationFailed  TransactionStatus = "compensation_failed"
)

// Audit is the full record of one scope's lifecycle, captured whether it
// commits or rolls back.
type Audit struct {
	ID            string
	Stage         string
	DocID         string
	StartedAt     time.Time
	CommittedAt   *time.Time
	RolledBackAt  *time.Time
	Status        TransactionStatus
	OriginalError error
	ErrorKind     errkind.Kind
	Handlers      []HandlerResult
}

// Handler is a registered undo action. It receives the scope's context so
// cleanup calls can still reach external systems after the triggering error
// cancelled the caller's own context: Rollback detaches each handler's
// context from the caller's cancellation and gives it a fixed 30-second
// window.
type Handler func(ctx context.Context) error

// namedHandler pairs a Handler with the name recorded in the audit trail.
type namedHandler struct {
	name string
	fn   Handler
}

// Scope is a compensating-transaction block. Callers construct one with
// Enter, register handlers as side effects occur, then call Commit or let
// Rollback run on the error path.
type Scope struct {
	ctx      context.Context
	logger   *slog.Logger
	audit    Audit
	handlers []namedHandler
	done     bool
}

// Enter opens a new scope. stage and docID are caller-supplied context
// recorded in the audit trail (e.g. "persist", the document's hash).
func Enter(ctx context.Context, stage, docID string, logger *slog.Logger) *Scope {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scope{
		ctx:    ctx,
		logger: logger,
		audit: Audit{
			ID:        uuid.NewString(),
			Stage:     stage,
			DocID:     docID,
			StartedAt: time.Now(),
		},
	}
}

// RegisterCompensation adds a handler to the LIFO undo list. Call this
// immediately after the side effect it undoes succeeds.
func (s *Scope) RegisterCompensation(name string, fn Handler) {
	s.handlers = append(s.handlers, namedHandler{name: name, fn: fn})
}

// Commit marks the scope successful and discards the compensation list.
// Calling Commit after Rollback, or twice, panics — it indicates a bug in
// the caller's control flow, not a runtime condition to recover from.
func (s *Scope) Commit() Audit {
	if s.done {
		panic("compensation: scope already closed")
	}
	s.done = true
	now := time.Now()
	s.audit.CommittedAt = &now
	s.audit.Status = StatusSuccess
	return s.audit
}

// Rollback runs every registered handler in reverse order, records per-
// handler outcomes, and returns the audit trail. It never returns an error
// of its own; the caller is expected to re-raise originalErr after calling
// Rollback, per the "always re-raise the original error" rule.
func (s *Scope) Rollback(originalErr error) Audit {
	if s.done {
		panic("compensation: scope already closed")
	}
	s.done = true

	now := time.Now()
	s.audit.RolledBackAt = &now
	s.audit.OriginalError = originalErr
	s.audit.ErrorKind = errkind.Classify(originalErr)

	anyHandlerFailed := false
	for i := len(s.handlers) - 1; i >= 0; i-- {
		h := s.handlers[i]
		// Compensation must run even if the triggering context is already
		// cancelled (e.g. Cancelled errors), so give cleanup its own bounded
		// window rather than inheriting a dead deadline.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 30*time.Second)
		err := h.fn(cctx)
		cancel()

		result := HandlerResult{Name: h.name, RanAt: time.Now(), Status: HandlerRan}
		if err != nil {
			anyHandlerFailed = true
			result.Status = HandlerFailed
			result.Err = err
			s.logger.Error("compensation handler failed", "handler", h.name, "stage", s.audit.Stage, "doc_id", s.audit.DocID, "err", err)
		} else {
			s.logger.Info("compensation handler ran", "handler", h.name, "stage", s.audit.Stage, "doc_id", s.audit.DocID)
		}
		s.audit.Handlers = append(s.audit.Handlers, result)
	}

	if anyHandlerFailed {
		s.audit.Status = StatusCompensationFailed
	} else if len(s.handlers) > 0 {
		s.audit.Status = StatusCompensated
	} else {
		s.audit.Status = StatusFailed
	}
	return s.audit
}

// Run is the common-case helper: it executes fn, committing on success and
// rolling back (re-raising fn's error) on failure. Use RegisterCompensation
// from within fn as side effects occur.
func Run(ctx context.Context, stage, docID string, logger *slog.Logger, fn func(*Scope) error) (Audit, error) {
	scope := Enter(ctx, stage, docID, logger)
	if err := fn(scope); err != nil {
		audit := scope.Rollback(err)
		return audit, err
	}
	return scope.Commit(), nil
}
