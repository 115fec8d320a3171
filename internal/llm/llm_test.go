package llm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/walksalot/docpipe/internal/errkind"
	"github.com/walksalot/docpipe/internal/retry"
)

// mockProvider is a test double recording calls and returning scripted
// results.
type mockProvider struct {
	mu    sync.Mutex
	calls int

	uploadErr   error
	extractErr  error
	extractResp *ExtractionResponse
	fileID      string

	// failFirstN makes Extract fail with a failKind error (Transient when
	// failKind is unset) for the first N calls, then succeed.
	failFirstN int
	failKind   errkind.Kind
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Upload(ctx context.Context, content []byte, filename string, purpose UploadPurpose) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	if m.fileID == "" {
		m.fileID = "file-mock-1"
	}
	return m.fileID, nil
}

func (m *mockProvider) DeleteFile(ctx context.Context, fileID string) error { return nil }

func (m *mockProvider) Extract(ctx context.Context, req ExtractionRequest) (*ExtractionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failFirstN {
		kind := m.failKind
		if kind == "" {
			kind = errkind.Transient
		}
		return nil, errkind.New(kind, "scripted failure")
	}
	if m.extractErr != nil {
		return nil, m.extractErr
	}
	if m.extractResp != nil {
		return m.extractResp, nil
	}
	return &ExtractionResponse{Text: "{}", Usage: Usage{PromptTokens: 10, OutputTokens: 5}}, nil
}

func fastPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Base = time.Millisecond
	p.Cap = 5 * time.Millisecond
	p.MaxAttempts = 5
	return p
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	breaker := NewCircuitBreaker(3, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, breaker.Allow())
		breaker.RecordFailure()
	}
	require.Equal(t, "open", breaker.State())

	err := breaker.Allow()
	require.Error(t, err)
	require.Equal(t, errkind.CircuitOpen, errkind.KindOf(err))
}

func TestCircuitRecoversAfterCooldown(t *testing.T) {
	breaker := NewCircuitBreaker(2, 20*time.Millisecond)

	breaker.Allow()
	breaker.RecordFailure()
	breaker.Allow()
	breaker.RecordFailure()
	require.Equal(t, "open", breaker.State())

	time.Sleep(30 * time.Millisecond)

	require.NoError(t, breaker.Allow())
	breaker.RecordSuccess()
	require.Equal(t, "closed", breaker.State())
}

func TestCircuitHalfOpenReopensOnFailure(t *testing.T) {
	breaker := NewCircuitBreaker(1, 10*time.Millisecond)

	breaker.Allow()
	breaker.RecordFailure()
	require.Equal(t, "open", breaker.State())

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, breaker.Allow())
	breaker.RecordFailure()
	require.Equal(t, "open", breaker.State())
}

// Extraction recovers once a provider that fails transiently a bounded
// number of times starts succeeding, without the caller seeing the
// intermediate failures.
func TestClientExtractRetriesThroughTransientFailures(t *testing.T) {
	provider := &mockProvider{failFirstN: 2, failKind: errkind.Transient}
	client := NewClient(provider, fastPolicy(), 10, time.Minute, nil)

	resp, err := client.ExtractMetadata(context.Background(), ExtractionRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	require.Equal(t, "{}", resp.Text)
	require.Equal(t, 3, provider.calls)
}

// A permanent failure (e.g. an invalid-request / auth error) must not be
// retried at all — the executor gives up on the first attempt.
func TestClientExtractDoesNotRetryPermanentFailures(t *testing.T) {
	provider := &mockProvider{failFirstN: 100, failKind: errkind.Permanent}
	client := NewClient(provider, fastPolicy(), 10, time.Minute, nil)

	_, err := client.ExtractMetadata(context.Background(), ExtractionRequest{Model: "gpt-4o"})
	require.Error(t, err)
	require.Equal(t, errkind.Permanent, errkind.KindOf(err))
	require.Equal(t, 1, provider.calls)
}

func TestClientExtractOpensBreakerAfterRepeatedFailures(t *testing.T) {
	provider := &mockProvider{failFirstN: 100, failKind: errkind.Permanent}
	policy := fastPolicy()
	policy.MaxAttempts = 1
	client := NewClient(provider, policy, 2, time.Minute, nil)

	_, err := client.ExtractMetadata(context.Background(), ExtractionRequest{})
	require.Error(t, err)
	_, err = client.ExtractMetadata(context.Background(), ExtractionRequest{})
	require.Error(t, err)

	_, err = client.ExtractMetadata(context.Background(), ExtractionRequest{})
	require.Equal(t, errkind.CircuitOpen, errkind.KindOf(err))
	require.Equal(t, "open", client.BreakerState())
}

func TestClientUploadIsIdempotentByToken(t *testing.T) {
	provider := &mockProvider{}
	client := NewClient(provider, fastPolicy(), 10, time.Minute, nil)
	token := NewIdempotencyToken()

	id1, err := client.Upload(context.Background(), []byte("pdf-bytes"), "a.pdf", token)
	require.NoError(t, err)
	id2, err := client.Upload(context.Background(), []byte("pdf-bytes"), "a.pdf", token)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestClientExtractWithCancelledContextReturns(t *testing.T) {
	provider := &mockProvider{}
	client := NewClient(provider, fastPolicy(), 10, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// With an already-cancelled context the retry executor returns a
	// Cancelled error before the provider is called; this only checks that
	// the call returns without panicking.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = client.ExtractMetadata(ctx, ExtractionRequest{})
	}()
	wg.Wait()
}
