package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRaiseAppendsFirstOccurrence(t *testing.T) {
	am := NewAlertManager(time.Minute)
	ok := am.Raise("llm_client", "circuit breaker open", SeverityCritical)
	require.True(t, ok)
	require.Len(t, am.Log(), 1)
}

func TestRaiseDedupesWithinWindow(t *testing.T) {
	am := NewAlertManager(time.Hour)
	require.True(t, am.Raise("vector_store", "attach timeout", SeverityWarning))
	require.False(t, am.Raise("vector_store", "attach timeout", SeverityWarning))
	require.Len(t, am.Log(), 1)
}

func TestRaiseDistinguishesComponentAndMessage(t *testing.T) {
	am := NewAlertManager(time.Hour)
	require.True(t, am.Raise("llm_client", "rate limited", SeverityWarning))
	require.True(t, am.Raise("vector_store", "rate limited", SeverityWarning))
	require.True(t, am.Raise("llm_client", "timeout", SeverityWarning))
	require.Len(t, am.Log(), 3)
}

func TestRaiseAfterWindowExpiresAppendsAgain(t *testing.T) {
	am := NewAlertManager(time.Millisecond)
	require.True(t, am.Raise("document_store", "disk full", SeverityError))
	time.Sleep(5 * time.Millisecond)
	require.True(t, am.Raise("document_store", "disk full", SeverityError))
	require.Len(t, am.Log(), 2)
}

func TestNewAlertManagerDefaultsWindow(t *testing.T) {
	am := NewAlertManager(0)
	require.Equal(t, DefaultDedupeWindow, am.window)
}

func TestFlushClearsLog(t *testing.T) {
	am := NewAlertManager(time.Hour)
	am.Raise("embedding_cache", "miss storm", SeverityInfo)

	flushed := am.Flush()
	require.Len(t, flushed, 1)
	require.Empty(t, am.Log())
}
