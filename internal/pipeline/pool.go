package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/walksalot/docpipe/internal/errkind"
)

// ProgressFunc is called after each path finishes, successfully or not.
type ProgressFunc func(done, total int, path string)

// Pool runs Process over a batch of paths concurrently, with configurable
// parallelism and a circuit breaker that stops starting new work once the
// LLM client's circuit breaker has tripped open.
type Pool struct {
	concurrency int
	orch        *Orchestrator
	onProgress  ProgressFunc
}

// NewPool builds a Pool. concurrency below 1 is clamped to 1.
func NewPool(concurrency int, orch *Orchestrator, onProgress ProgressFunc) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{concurrency: concurrency, orch: orch, onProgress: onProgress}
}

// BatchResult collects every path's Result alongside any paths skipped
// outright because the circuit breaker was already open when their turn
// came up.
type BatchResult struct {
	Results []*Result
	Errors  []error
}

// ProcessPaths runs Process(path) for every path in paths, up to
// concurrency at a time. If the LLM client's circuit breaker opens mid-run,
// remaining unscheduled paths are skipped rather than attempted and failed
// one by one.
func (p *Pool) ProcessPaths(ctx context.Context, paths []string) *BatchResult {
	total := len(paths)
	if total == 0 {
		return &BatchResult{}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var breakerTripped int64

	sem := make(chan struct{}, p.concurrency)
	var mu sync.Mutex
	var processed int64
	result := &BatchResult{}

	var wg sync.WaitGroup
	for _, path := range paths {
		if atomic.LoadInt64(&breakerTripped) > 0 {
			mu.Lock()
			result.Errors = append(result.Errors, errkind.New(errkind.CircuitOpen, "skipped: "+path))
			mu.Unlock()
			p.reportProgress(&processed, total, path)
			continue
		}

		select {
		case <-ctx.Done():
			mu.Lock()
			result.Errors = append(result.Errors, ctx.Err())
			mu.Unlock()
			p.reportProgress(&processed, total, path)
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := p.orch.Process(ctx, path)
			mu.Lock()
			if err != nil {
				result.Errors = append(result.Errors, err)
				if errkind.Is(err, errkind.CircuitOpen) {
					atomic.StoreInt64(&breakerTripped, 1)
					cancel()
				}
			}
			if res != nil {
				result.Results = append(result.Results, res)
			}
			mu.Unlock()

			p.reportProgress(&processed, total, path)
		}(path)
	}

	wg.Wait()
	return result
}

func (p *Pool) reportProgress(processed *int64, total int, path string) {
	count := atomic.AddInt64(processed, 1)
	if p.onProgress != nil {
		p.onProgress(int(count), total, path)
	}
}

// Summary tallies a BatchResult into per-outcome counts, for a final report
// line after a batch run.
type Summary struct {
	Completed          int
	Duplicate          int
	VectorUploadFailed int
	Failed             int
	Skipped            int
}

// Summarize tallies br into a Summary. Errors with no corresponding Result
// (paths skipped before Process ran, or context cancellation) count as
// Skipped; every other entry is counted by its Result.Outcome.
func Summarize(br *BatchResult) Summary {
	var s Summary
	for _, r := range br.Results {
		switch r.Outcome {
		case OutcomeCompleted:
			s.Completed++
		case OutcomeDuplicate:
			s.Duplicate++
		case OutcomeVectorUploadFailed:
			s.VectorUploadFailed++
		default:
			s.Failed++
		}
	}
	s.Skipped = len(br.Errors) - (s.Failed)
	if s.Skipped < 0 {
		s.Skipped = 0
	}
	return s
}

// ErrBreakerOpenDuringBatch is returned by callers that want to distinguish
// a fully-tripped batch from one with only scattered per-file failures.
var ErrBreakerOpenDuringBatch = errors.New("pipeline: circuit breaker opened during batch, remaining paths skipped")
