package vectorstore

import "context"

// BackendResult is one raw hit returned by a Backend's Search, before
// Client reshapes it into a SearchResult.
type BackendResult struct {
	ID      string
	Content string
	Score   float32
}

// Backend is the storage engine Client drives. It knows nothing about
// poll-to-ready state machines or per-store metrics — those are Client's
// concerns, layered over any Backend implementation.
type Backend interface {
	EnsureCollection(ctx context.Context, name string) error
	AddDocument(ctx context.Context, collection, id, content string, metadata map[string]string) error
	RemoveDocument(ctx context.Context, collection, id string) error
	Search(ctx context.Context, collection, query string, topK int, filter map[string]string) ([]BackendResult, error)
	Count(ctx context.Context, collection string) (int, error)
}
