// Package llm implements a structured-output request builder wrapping a
// vendor Provider with retry and a circuit breaker.
package llm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/walksalot/docpipe/internal/errkind"
	"github.com/walksalot/docpipe/internal/retry"
)

// Client composes a Provider with a retry executor and a per-client circuit
// breaker, so callers get retried, breaker-guarded extraction calls without
// handling either concern themselves.
type Client struct {
	provider Provider
	breaker  *CircuitBreaker
	executor *retry.Executor
	logger   *slog.Logger

	mu          sync.Mutex
	idempotency map[string]string // idempotency token -> file_id
}

// NewClient builds a Client. policy configures the retry executor (see
// retry.DefaultPolicy); fOpen/tCool configure the breaker (fOpen<=0 or
// tCool<=0 selects the component design's defaults: 10 failures, 60s).
func NewClient(provider Provider, policy retry.Policy, fOpen int, tCool time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		provider:    provider,
		breaker:     NewCircuitBreaker(fOpen, tCool),
		executor:    retry.NewExecutor(policy, logger),
		logger:      logger,
		idempotency: make(map[string]string),
	}
}

// Upload uploads content, returning the provider file id. If
// idempotencyToken is non-empty and a prior Upload with the same token
// succeeded, the cached file id is returned without a second network call.
func (c *Client) Upload(ctx context.Context, content []byte, filename string, idempotencyToken string) (string, error) {
	if idempotencyToken != "" {
		c.mu.Lock()
		if fileID, ok := c.idempotency[idempotencyToken]; ok {
			c.mu.Unlock()
			return fileID, nil
		}
		c.mu.Unlock()
	}

	if err := c.breaker.Allow(); err != nil {
		return "", err
	}

	result, err := c.executor.Run(ctx, func(ctx context.Context, attempt int) (any, error) {
		fileID, err := c.provider.Upload(ctx, content, filename, PurposeExtraction)
		if err != nil {
			c.breaker.RecordFailure()
			return nil, err
		}
		c.breaker.RecordSuccess()
		return fileID, nil
	})
	if err != nil {
		return "", err
	}

	fileID := result.(string)
	if idempotencyToken != "" {
		c.mu.Lock()
		c.idempotency[idempotencyToken] = fileID
		c.mu.Unlock()
	}
	return fileID, nil
}

// DeleteFile removes an uploaded file, used by the cleanup_llm_upload
// compensation handler. Not retried: compensation handlers run once inside
// a bounded grace window, and a failed cleanup is recorded, not retried.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	return c.provider.DeleteFile(ctx, fileID)
}

// ExtractMetadata performs the structured-output call under retry and the
// circuit breaker. Returns CircuitOpen (non-retryable) while the breaker is
// tripped.
func (c *Client) ExtractMetadata(ctx context.Context, req ExtractionRequest) (*ExtractionResponse, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	result, err := c.executor.Run(ctx, func(ctx context.Context, attempt int) (any, error) {
		resp, err := c.provider.Extract(ctx, req)
		if err != nil {
			c.breaker.RecordFailure()
			return nil, err
		}
		c.breaker.RecordSuccess()
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ExtractionResponse), nil
}

// BreakerState exposes the circuit breaker's state for health reporting.
func (c *Client) BreakerState() string { return c.breaker.State() }

// NewIdempotencyToken mints a caller-controlled identifier ensuring a
// retried Upload executes at most once server-side, per the glossary's
// idempotency-token definition.
func NewIdempotencyToken() string { return uuid.NewString() }

// wrapValidation tags err as an errkind.Validation failure with msg.
func wrapValidation(err error, msg string) error {
	return errkind.Wrap(errkind.Validation, err, msg)
}
