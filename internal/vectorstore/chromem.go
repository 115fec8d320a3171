package vectorstore

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/walksalot/docpipe/internal/embeddings"
)

// ChromemBackend implements Backend over an embedded chromem-go database,
// one collection per store, generalized from a single fixed collection to
// arbitrary named stores.
type ChromemBackend struct {
	db        *chromem.DB
	embedFunc chromem.EmbeddingFunc

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewChromemBackend builds a Backend backed by an in-memory chromem-go
// database, embedding documents with embedder.
func NewChromemBackend(embedder embeddings.Embedder) *ChromemBackend {
	return &ChromemBackend{
		db:          chromem.NewDB(),
		embedFunc:   embeddings.ToChromemFunc(embedder),
		collections: make(map[string]*chromem.Collection),
	}
}

func (b *ChromemBackend) EnsureCollection(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.collections[name]; ok {
		return nil
	}
	col, err := b.db.GetOrCreateCollection(name, nil, b.embedFunc)
	if err != nil {
		return fmt.Errorf("ensure collection %q: %w", name, err)
	}
	b.collections[name] = col
	return nil
}

func (b *ChromemBackend) collection(name string) (*chromem.Collection, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	col, ok := b.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %q not ensured", name)
	}
	return col, nil
}

func (b *ChromemBackend) AddDocument(ctx context.Context, collectionName, id, content string, metadata map[string]string) error {
	col, err := b.collection(collectionName)
	if err != nil {
		return err
	}
	doc := chromem.Document{ID: id, Content: content, Metadata: metadata}
	return col.AddDocuments(ctx, []chromem.Document{doc}, 1)
}

func (b *ChromemBackend) RemoveDocument(ctx context.Context, collectionName, id string) error {
	col, err := b.collection(collectionName)
	if err != nil {
		return err
	}
	return col.Delete(ctx, nil, nil, id)
}

func (b *ChromemBackend) Search(ctx context.Context, collectionName, query string, topK int, filter map[string]string) ([]BackendResult, error) {
	col, err := b.collection(collectionName)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}
	if count := col.Count(); count == 0 {
		return nil, nil
	} else if topK > count {
		topK = count
	}

	results, err := col.Query(ctx, query, topK, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]BackendResult, len(results))
	for i, r := range results {
		out[i] = BackendResult{ID: r.ID, Content: r.Content, Score: r.Similarity}
	}
	return out, nil
}

func (b *ChromemBackend) Count(ctx context.Context, collectionName string) (int, error) {
	col, err := b.collection(collectionName)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}
