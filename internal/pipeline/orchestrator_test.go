package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/walksalot/docpipe/internal/cost"
	"github.com/walksalot/docpipe/internal/db"
	"github.com/walksalot/docpipe/internal/documents"
	"github.com/walksalot/docpipe/internal/hashing"
	"github.com/walksalot/docpipe/internal/llm"
	"github.com/walksalot/docpipe/internal/observability"
	"github.com/walksalot/docpipe/internal/retry"
	"github.com/walksalot/docpipe/internal/vectorstore"
)

type fakeProvider struct {
	mu         sync.Mutex
	uploadErr  error
	extractErr error
	deleted    []string
	result     llm.ExtractionResponse
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Upload(ctx context.Context, content []byte, filename string, purpose llm.UploadPurpose) (string, error) {
	if p.uploadErr != nil {
		return "", p.uploadErr
	}
	return "file_" + filename, nil
}

func (p *fakeProvider) DeleteFile(ctx context.Context, fileID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, fileID)
	return nil
}

func (p *fakeProvider) Extract(ctx context.Context, req llm.ExtractionRequest) (*llm.ExtractionResponse, error) {
	if p.extractErr != nil {
		return nil, p.extractErr
	}
	r := p.result
	return &r, nil
}

func validExtractionJSON(t *testing.T) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"doc_type":   "invoice",
		"confidence": 0.92,
		"summary":    "Invoice for services rendered in March.",
		"urgency":    "medium",
	})
	require.NoError(t, err)
	return string(b)
}

type fakeVectorBackend struct {
	mu       sync.Mutex
	failAdd  bool
	contents map[string]string
}

func newFakeVectorBackend() *fakeVectorBackend {
	return &fakeVectorBackend{contents: make(map[string]string)}
}

func (b *fakeVectorBackend) EnsureCollection(ctx context.Context, name string) error { return nil }

func (b *fakeVectorBackend) AddDocument(ctx context.Context, collection, id, content string, metadata map[string]string) error {
	if b.failAdd {
		return os.ErrClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contents[collection+"/"+id] = content
	return nil
}

func (b *fakeVectorBackend) RemoveDocument(ctx context.Context, collection, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.contents, collection+"/"+id)
	return nil
}

func (b *fakeVectorBackend) Search(ctx context.Context, collection, query string, topK int, filter map[string]string) ([]vectorstore.BackendResult, error) {
	return nil, nil
}

func (b *fakeVectorBackend) Count(ctx context.Context, collection string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.contents), nil
}

func testOrchestrator(t *testing.T, provider llm.Provider, backend vectorstore.Backend) (*Orchestrator, *documents.Store) {
	t.Helper()
	d, err := db.OpenMemory()
	require.NoError(t, err)
	store, err := documents.Open(d)
	require.NoError(t, err)

	estimator := cost.NewEstimator(cost.DefaultTable())
	llmClient := llm.NewClient(provider, retry.Policy{MaxAttempts: 2, Base: 0, Cap: 0, Multiplier: 1}, 1000, 0, nil)

	var vc *vectorstore.Client
	if backend != nil {
		vc = vectorstore.NewClient(backend, vectorstore.PollPolicy{Interval: 0, MaxBackoff: 0, MaxWait: 0}, "")
	}

	orch := NewOrchestrator(store, llmClient, estimator, vc, Config{Model: "gpt-4o-mini", VectorStoreName: "docs"}, nil, Telemetry{})
	return orch, store
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcessHappyPath(t *testing.T) {
	provider := &fakeProvider{result: llm.ExtractionResponse{
		Text:  validExtractionJSON(t),
		Usage: llm.Usage{PromptTokens: 500, OutputTokens: 100},
		Raw:   []byte(`{}`),
	}}
	backend := newFakeVectorBackend()
	orch, _ := testOrchestrator(t, provider, backend)

	path := writeTempFile(t, "some invoice content")
	res, err := orch.Process(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, res.Outcome)
	require.NotNil(t, res.Document)
	require.Equal(t, "invoice", res.Document.DocType)
	require.NotNil(t, res.Document.VectorStoreFileID)
}

func TestProcessDuplicateShortCircuits(t *testing.T) {
	provider := &fakeProvider{result: llm.ExtractionResponse{
		Text:  validExtractionJSON(t),
		Usage: llm.Usage{PromptTokens: 500, OutputTokens: 100},
		Raw:   []byte(`{}`),
	}}
	backend := newFakeVectorBackend()
	orch, _ := testOrchestrator(t, provider, backend)

	path := writeTempFile(t, "duplicate content")
	first, err := orch.Process(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, first.Outcome)

	second, err := orch.Process(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, second.Outcome)
	require.Equal(t, first.DocumentID, second.DocumentID)
	require.Empty(t, provider.deleted) // commit on the first call discards compensations; the second never reaches S4
}

func TestProcessExtractFailureRollsBackUpload(t *testing.T) {
	provider := &fakeProvider{extractErr: os.ErrDeadlineExceeded}
	orch, store := testOrchestrator(t, provider, nil)

	path := writeTempFile(t, "content that fails extraction")
	res, err := orch.Process(context.Background(), path)
	require.Error(t, err)
	require.Equal(t, OutcomeFailed, res.Outcome)

	require.Len(t, provider.deleted, 1) // compensation deleted the uploaded file

	digest, err := hashOf(path)
	require.NoError(t, err)
	existing, err := store.FindByHash(context.Background(), digest)
	require.NoError(t, err)
	require.Nil(t, existing) // rollback means no row is persisted
}

func TestProcessVectorAttachFailureIsNonFatal(t *testing.T) {
	provider := &fakeProvider{result: llm.ExtractionResponse{
		Text:  validExtractionJSON(t),
		Usage: llm.Usage{PromptTokens: 500, OutputTokens: 100},
		Raw:   []byte(`{}`),
	}}
	backend := newFakeVectorBackend()
	backend.failAdd = true
	orch, _ := testOrchestrator(t, provider, backend)

	path := writeTempFile(t, "vector attach will fail")
	res, err := orch.Process(context.Background(), path)
	require.NoError(t, err) // the overall document is not a pipeline failure
	require.Equal(t, Outcome(documents.StatusVectorUploadFailed), res.Outcome)
	require.Nil(t, res.Document.VectorStoreFileID)
}

func TestProcessWithNilVectorClientSkipsS8(t *testing.T) {
	provider := &fakeProvider{result: llm.ExtractionResponse{
		Text:  validExtractionJSON(t),
		Usage: llm.Usage{PromptTokens: 500, OutputTokens: 100},
		Raw:   []byte(`{}`),
	}}
	orch, _ := testOrchestrator(t, provider, nil)

	path := writeTempFile(t, "no vector store configured")
	res, err := orch.Process(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, res.Outcome)
	require.Nil(t, res.Document.VectorStoreFileID)
}

func TestProcessRecordsCostMetricsAndAlerts(t *testing.T) {
	provider := &fakeProvider{result: llm.ExtractionResponse{
		Text:  validExtractionJSON(t),
		Usage: llm.Usage{PromptTokens: 500, OutputTokens: 100},
		Raw:   []byte(`{}`),
	}}

	d, err := db.OpenMemory()
	require.NoError(t, err)
	store, err := documents.Open(d)
	require.NoError(t, err)

	estimator := cost.NewEstimator(cost.DefaultTable())
	llmClient := llm.NewClient(provider, retry.Policy{MaxAttempts: 2, Base: 0, Cap: 0, Multiplier: 1}, 1000, 0, nil)

	metrics := observability.NewMetricsCollector()
	alerts := observability.NewAlertManager(time.Hour)
	health := observability.NewHealthRegistry()

	cfg := Config{Model: "gpt-4o-mini", VectorStoreName: "docs", CostAlertT1: 0.000001}
	orch := NewOrchestrator(store, llmClient, estimator, nil, cfg, nil, Telemetry{Metrics: metrics, Alerts: alerts, Health: health})

	path := writeTempFile(t, "content cheap enough to trip the warning tier")
	res, err := orch.Process(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, res.Outcome)

	agg := metrics.Aggregate("document_cost_usd", time.Time{})
	require.Equal(t, 1, agg.Count)
	require.Greater(t, agg.Sum, 0.0)

	log := alerts.Log()
	require.Len(t, log, 1)
	require.Equal(t, observability.SeverityWarning, log[0].Severity)

	require.Equal(t, observability.StatusHealthy, health.Status())
}

func hashOf(path string) (string, error) {
	d, err := hashing.HashFile(path)
	if err != nil {
		return "", err
	}
	return d.Hex, nil
}
