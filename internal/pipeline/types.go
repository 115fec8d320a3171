// Package pipeline implements the fixed eight-stage sequence that turns one
// file path into a persisted Document, plus the worker pool that runs it
// over a batch of paths: hash, dedup check, preflight cost estimate,
// upload, extract, cost compute, persist, and best-effort vector-store
// attachment.
package pipeline

import (
	"time"

	"github.com/walksalot/docpipe/internal/compensation"
	"github.com/walksalot/docpipe/internal/cost"
	"github.com/walksalot/docpipe/internal/documents"
)

// Outcome is the terminal disposition Process reports for one path.
type Outcome string

const (
	OutcomeCompleted           Outcome = "completed"
	OutcomeDuplicate           Outcome = "duplicate"
	OutcomeFailed              Outcome = "failed"
	OutcomeVectorUploadFailed  Outcome = "vector_upload_failed"
)

// ProcessingContext is the ephemeral, per-job state threaded through S1-S8.
// It is owned by the orchestrator for the lifetime of one Process call and
// discarded afterward; nothing here is durable except what stages persist
// into documents.Store.
type ProcessingContext struct {
	Path  string
	Bytes []byte // populated lazily, only once a stage needs file contents

	SHA256Hex    string
	SHA256B64URL string

	Draft *documents.Document

	LLMFileID         string
	VectorStoreFileID string

	CostEstimate *cost.Estimate

	Audits []compensation.Audit

	StartedAt time.Time
}

// Result is what Process returns to its caller.
type Result struct {
	Outcome    Outcome
	DocumentID int64
	Document   *documents.Document
	Duration   time.Duration
	Err        error
}
