package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/walksalot/docpipe/internal/errkind"
)

// PollPolicy controls AttachFile's poll-to-ready loop.
type PollPolicy struct {
	Interval   time.Duration
	MaxBackoff time.Duration
	MaxWait    time.Duration
}

// DefaultPollPolicy matches the component design's defaults: a bounded
// total wait of 5 minutes, exponential backoff between polls.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: 500 * time.Millisecond, MaxBackoff: 10 * time.Second, MaxWait: 5 * time.Minute}
}

// attachment tracks one AttachFile's poll-to-ready state.
type attachment struct {
	status FileStatus
	err    error
}

// Client drives Backend through the named-store, poll-to-ready,
// hybrid-search contract and tracks per-store Metrics.
type Client struct {
	backend   Backend
	poll      PollPolicy
	cachePath string

	mu       sync.Mutex
	stores   map[string]string // name -> store_id
	metrics  map[string]*Metrics
	attached map[string]*attachment // vsf_id -> attachment
}

// NewClient builds a Client over backend. cachePath, if non-empty, is a
// JSON file persisting the name -> store_id map across process restarts so
// EnsureStore stays idempotent.
func NewClient(backend Backend, poll PollPolicy, cachePath string) *Client {
	c := &Client{
		backend:   backend,
		poll:      poll,
		cachePath: cachePath,
		stores:    make(map[string]string),
		metrics:   make(map[string]*Metrics),
		attached:  make(map[string]*attachment),
	}
	c.loadCache()
	return c
}

func (c *Client) loadCache() {
	if c.cachePath == "" {
		return
	}
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return
	}
	var stores map[string]string
	if json.Unmarshal(data, &stores) == nil {
		c.stores = stores
	}
}

func (c *Client) saveCache() {
	if c.cachePath == "" {
		return
	}
	data, err := json.Marshal(c.stores)
	if err != nil {
		return
	}
	_ = os.WriteFile(c.cachePath, data, 0o644)
}

// EnsureStore returns the store id for name, creating the backing
// collection on first use. Idempotent across calls and, when cachePath is
// set, across process restarts.
func (c *Client) EnsureStore(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	if id, ok := c.stores[name]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	storeID := storeIDFor(name)
	if err := c.backend.EnsureCollection(ctx, storeID); err != nil {
		return "", errkind.Wrap(errkind.Transient, err, "ensure vector store collection")
	}

	c.mu.Lock()
	c.stores[name] = storeID
	c.metrics[storeID] = &Metrics{}
	c.saveCache()
	c.mu.Unlock()

	return storeID, nil
}

func storeIDFor(name string) string {
	sum := sha256.Sum256([]byte(name))
	return fmt.Sprintf("vs_%x", sum[:8])
}

func (c *Client) metricsFor(storeID string) *Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.metrics[storeID]
	if !ok {
		m = &Metrics{}
		c.metrics[storeID] = m
	}
	return m
}

// Metrics returns the Metrics tracker for storeID, creating one if absent.
func (c *Client) Metrics(storeID string) *Metrics { return c.metricsFor(storeID) }

// AttachFile adds fileID's content to storeID, then polls the resulting
// vector-store-file through queued -> in_progress -> {completed | failed}
// with exponential backoff, bounded by poll.MaxWait. Returns the vector
// store file id once the terminal state is reached (including failed —
// callers decide whether that's fatal).
func (c *Client) AttachFile(ctx context.Context, storeID, fileID, content string, metadata map[string]string) (string, error) {
	vsfID := storeID + "/" + fileID
	metrics := c.metricsFor(storeID)

	c.mu.Lock()
	c.attached[vsfID] = &attachment{status: StatusQueued}
	c.mu.Unlock()

	c.setStatus(vsfID, StatusInProgress, nil)
	err := c.backend.AddDocument(ctx, storeID, fileID, content, metadata)
	if err != nil {
		c.setStatus(vsfID, StatusFailed, err)
		metrics.recordUpload(false, 0)
		kind := errkind.KindOf(err)
		if kind == "" {
			kind = errkind.Transient
		}
		return vsfID, errkind.Wrap(kind, err, "attach file to vector store")
	}
	c.setStatus(vsfID, StatusCompleted, nil)
	metrics.recordUpload(true, int64(len(content)))

	if _, err := c.waitForReady(ctx, vsfID); err != nil {
		return vsfID, err
	}
	return vsfID, nil
}

func (c *Client) setStatus(vsfID string, status FileStatus, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.attached[vsfID]
	if !ok {
		a = &attachment{}
		c.attached[vsfID] = a
	}
	a.status = status
	a.err = err
}

func (c *Client) statusOf(vsfID string) (FileStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.attached[vsfID]
	if !ok {
		return "", fmt.Errorf("vectorstore: unknown file %q", vsfID)
	}
	return a.status, a.err
}

// waitForReady polls statusOf until a terminal state or poll.MaxWait
// elapses. The backend above resolves status synchronously, but the loop
// itself — exponential backoff, bounded total wait, context-cancellable —
// is exercised the same way a genuinely async remote backend would need.
func (c *Client) waitForReady(ctx context.Context, vsfID string) (FileStatus, error) {
	deadline := time.Now().Add(c.poll.MaxWait)
	delay := c.poll.Interval

	for {
		status, statusErr := c.statusOf(vsfID)
		if status == StatusCompleted {
			return status, nil
		}
		if status == StatusFailed {
			return status, errkind.Wrap(errkind.Permanent, statusErr, "vector store file attachment failed")
		}
		if time.Now().After(deadline) {
			return status, errkind.New(errkind.Transient, "vector store attachment poll timed out")
		}

		select {
		case <-ctx.Done():
			return status, errkind.Wrap(errkind.Cancelled, ctx.Err(), "vector store attachment poll cancelled")
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.poll.MaxBackoff {
			delay = c.poll.MaxBackoff
		}
	}
}

// Search performs a hybrid (semantic + keyword, per the backend) query
// against storeID, recording search latency and failure counters.
func (c *Client) Search(ctx context.Context, storeID string, req SearchRequest) ([]SearchResult, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}
	metrics := c.metricsFor(storeID)
	start := time.Now()

	results, err := c.backend.Search(ctx, storeID, req.Query, topK, req.Filter)
	latency := time.Since(start)
	if err != nil {
		metrics.recordSearch(latency, true)
		return nil, errkind.Wrap(errkind.Transient, err, "vector store search")
	}
	metrics.recordSearch(latency, false)

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{FileID: r.ID, Score: r.Score, Snippet: r.Content}
	}
	return out, nil
}

// DetachFile removes fileID from storeID, used as a compensation cleanup
// step when a downstream stage fails after a vector attachment succeeded.
func (c *Client) DetachFile(ctx context.Context, storeID, fileID string) error {
	vsfID := storeID + "/" + fileID
	if err := c.backend.RemoveDocument(ctx, storeID, fileID); err != nil {
		return errkind.Wrap(errkind.Transient, err, "detach file from vector store")
	}
	c.mu.Lock()
	delete(c.attached, vsfID)
	c.mu.Unlock()
	return nil
}
