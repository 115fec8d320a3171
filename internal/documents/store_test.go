package documents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/walksalot/docpipe/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	memDB, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { memDB.Close() })

	store, err := Open(memDB)
	require.NoError(t, err)
	return store
}

func sampleDraft(hex string) *Document {
	return &Document{
		SHA256Hex:        hex,
		SHA256B64URL:     "b64-" + hex,
		OriginalFilename: "invoice.pdf",
		FileSizeBytes:    4096,
		Status:           StatusPending,
	}
}

func TestInsertAndFindByHash(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc, err := store.Insert(ctx, sampleDraft("abc123"))
	require.NoError(t, err)
	require.NotZero(t, doc.ID)
	require.Equal(t, doc.CreatedAt, doc.UpdatedAt)

	found, err := store.FindByHash(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, doc.ID, found.ID)
}

func TestFindByHashMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	found, err := store.FindByHash(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, found)
}

// sha256_hex is unique over live rows.
func TestInsertDuplicateHashFails(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Insert(ctx, sampleDraft("dup"))
	require.NoError(t, err)

	_, err = store.Insert(ctx, sampleDraft("dup"))
	require.Error(t, err)
	var dupErr *DuplicateHashError
	require.ErrorAs(t, err, &dupErr)
}

// a soft-deleted row frees its hash for reinsertion.
func TestInsertAfterSoftDeleteSucceeds(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.Insert(ctx, sampleDraft("reuse"))
	require.NoError(t, err)

	require.NoError(t, store.SoftDelete(ctx, first.ID))

	second, err := store.Insert(ctx, sampleDraft("reuse"))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	// The live lookup should only ever see the second row.
	found, err := store.FindByHash(ctx, "reuse")
	require.NoError(t, err)
	require.Equal(t, second.ID, found.ID)
}

func TestUpdateAdvancesUpdatedAt(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc, err := store.Insert(ctx, sampleDraft("upd"))
	require.NoError(t, err)

	doc.Status = StatusCompleted
	doc.Summary = "updated"
	updated, err := store.Update(ctx, doc)
	require.NoError(t, err)
	require.True(t, !updated.UpdatedAt.Before(doc.CreatedAt))
	require.Equal(t, "updated", updated.Summary)

	refetched, err := store.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, refetched.Status)
}

func TestUpdateForbiddenOnSoftDeleted(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc, err := store.Insert(ctx, sampleDraft("del"))
	require.NoError(t, err)
	require.NoError(t, store.SoftDelete(ctx, doc.ID))

	_, err = store.Update(ctx, doc)
	require.Error(t, err)
}

func TestSoftDeleteSetsDeletedAt(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc, err := store.Insert(ctx, sampleDraft("soft"))
	require.NoError(t, err)
	require.NoError(t, store.SoftDelete(ctx, doc.ID))

	found, err := store.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, found.DeletedAt)
	require.False(t, found.IsLive())
}

func TestHealthCheck(t *testing.T) {
	store := newTestStore(t)
	require.True(t, store.HealthCheck(context.Background()))
}

func TestListAndTagRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	draft := sampleDraft("tags")
	draft.Tags = []string{"invoice", "urgent"}
	draft.ActionItems = []string{"pay by friday"}

	doc, err := store.Insert(ctx, draft)
	require.NoError(t, err)

	found, err := store.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"invoice", "urgent"}, found.Tags)
	require.ElementsMatch(t, []string{"pay by friday"}, found.ActionItems)
}
