package compensation

import "context"

// FileDeleter is satisfied by the LLM client for cleanup_llm_upload.
type FileDeleter interface {
	DeleteFile(ctx context.Context, fileID string) error
}

// VectorFileDetacher is satisfied by the vector store client for
// cleanup_vector_store.
type VectorFileDetacher interface {
	DetachFile(ctx context.Context, storeID, fileID string) error
}

// CleanupLLMUpload returns a Handler that deletes an uploaded LLM file.
func CleanupLLMUpload(client FileDeleter, fileID string) Handler {
	return func(ctx context.Context) error {
		return client.DeleteFile(ctx, fileID)
	}
}

// CleanupVectorStore returns a Handler that detaches a file from a vector
// store.
func CleanupVectorStore(client VectorFileDetacher, storeID, fileID string) Handler {
	return func(ctx context.Context) error {
		return client.DetachFile(ctx, storeID, fileID)
	}
}

// CleanupMulti runs a list of handlers in LIFO order, collecting the first
// error but running every handler regardless. Used when a single
// compensation step must undo more than one side effect atomically from the
// scope's perspective.
func CleanupMulti(handlers ...Handler) Handler {
	return func(ctx context.Context) error {
		var firstErr error
		for i := len(handlers) - 1; i >= 0; i-- {
			if err := handlers[i](ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
}
