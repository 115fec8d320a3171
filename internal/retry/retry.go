// Package retry implements a generic retry executor: classifies errors as
// transient or permanent and re-invokes a thunk after a bounded,
// deterministic exponential delay.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/walksalot/docpipe/internal/errkind"
)

// Policy controls backoff shape and the retry budget. The zero value is not
// usable; construct with DefaultPolicy() and override fields as needed.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	Multiplier  float64
}

// DefaultPolicy matches the component design's defaults: max_attempts=5,
// base=2s, cap=60s, multiplier=2, no jitter. The test suite asserts
// deterministic waits, per the Open Question resolution pinning this.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Base: 2 * time.Second, Cap: 60 * time.Second, Multiplier: 2}
}

// delayForAttempt returns base * multiplier^(attempt-1), capped. attempt is
// 1-indexed (the delay before the *next* call, after `attempt` failures).
func (p Policy) delayForAttempt(attempt int) time.Duration {
	d := float64(p.Base)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	if d > float64(p.Cap) {
		d = float64(p.Cap)
	}
	return time.Duration(d)
}

// Attempt describes one call outcome: its number, the delay before it, and
// its error. Run does not hand Attempt values to callers.
type Attempt struct {
	Number int
	Delay  time.Duration
	Err    error
}

// Executor runs thunks under a Policy, classifying failures via errkind.
type Executor struct {
	policy Policy
	clock  func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

// NewExecutor builds an Executor with the given policy. A nil logger
// discards attempt logs.
func NewExecutor(policy Policy, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		policy: policy,
		clock:  time.Now,
		sleep:  ctxSleep,
		logger: logger,
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errkind.New(errkind.Cancelled, "retry delay aborted by context")
	case <-t.C:
		return nil
	}
}

// Thunk is the operation retried. It must classify its own errors via
// errkind.Wrap so the executor's classification step has something to read;
// unwrapped errors fall back to message-substring classification.
type Thunk func(ctx context.Context, attempt int) (any, error)

// Run invokes thunk, retrying on classification Transient until exhaustion,
// success, or a non-retryable classification. Exhaustion re-raises the
// original last error, unwrapped of retry bookkeeping.
func (e *Executor) Run(ctx context.Context, thunk Thunk) (any, error) {
	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errkind.Wrap(errkind.Cancelled, err, "retry aborted before attempt")
		}

		result, err := thunk(ctx, attempt)
		if err == nil {
			e.logger.Debug("retry succeeded", "attempt", attempt)
			return result, nil
		}

		lastErr = err
		kind := errkind.Classify(err)
		if !isRetryable(kind) {
			e.logger.Debug("retry: non-retryable error, stopping", "attempt", attempt, "kind", kind, "err", err)
			return nil, err
		}

		if attempt == e.policy.MaxAttempts {
			break
		}

		delay := e.policy.delayForAttempt(attempt)
		e.logger.Info("retry: transient failure, backing off", "attempt", attempt, "delay", delay, "err", err)
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}
	e.logger.Warn("retry: attempts exhausted", "attempts", e.policy.MaxAttempts, "err", lastErr)
	return nil, lastErr
}

// isRetryable consults the shared error-kind classification: only Transient
// is retried. Unknown kinds ("") are treated as non-retryable — a provider
// error that can't be classified is safer to surface than to loop on.
func isRetryable(kind errkind.Kind) bool {
	return kind == errkind.Transient
}
