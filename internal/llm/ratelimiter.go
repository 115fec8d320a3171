package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimitedProvider wraps a Provider with a token-bucket rate limiter,
// implementing the RATE_LIMIT_RPM client-side throttle from the config
// table. Every Provider method passes through wait() first.
type RateLimitedProvider struct {
	provider Provider
	rpm      int
	mu       sync.Mutex
	tokens   int
	lastFill time.Time
}

// NewRateLimitedProvider wraps provider with a limiter allowing at most rpm
// requests per minute.
func NewRateLimitedProvider(provider Provider, rpm int) Provider {
	return &RateLimitedProvider{
		provider: provider,
		rpm:      rpm,
		tokens:   rpm,
		lastFill: time.Now(),
	}
}

func (r *RateLimitedProvider) Name() string { return r.provider.Name() }

func (r *RateLimitedProvider) Upload(ctx context.Context, content []byte, filename string, purpose UploadPurpose) (string, error) {
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	return r.provider.Upload(ctx, content, filename, purpose)
}

func (r *RateLimitedProvider) DeleteFile(ctx context.Context, fileID string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.provider.DeleteFile(ctx, fileID)
}

func (r *RateLimitedProvider) Extract(ctx context.Context, req ExtractionRequest) (*ExtractionResponse, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.provider.Extract(ctx, req)
}

func (r *RateLimitedProvider) wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(r.lastFill)

		refill := int(elapsed.Seconds() * float64(r.rpm) / 60.0)
		if refill > 0 {
			r.tokens += refill
			if r.tokens > r.rpm {
				r.tokens = r.rpm
			}
			r.lastFill = now
		}

		if r.tokens > 0 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
