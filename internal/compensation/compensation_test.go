package compensation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommitDiscardsHandlers(t *testing.T) {
	ran := false
	audit, err := Run(context.Background(), "persist", "doc-1", nil, func(s *Scope) error {
		s.RegisterCompensation("noop", func(ctx context.Context) error {
			ran = true
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, audit.Status)
	require.NotNil(t, audit.CommittedAt)
	require.Nil(t, audit.RolledBackAt)
	require.False(t, ran, "handlers must not run on commit")
}

// compensation correctness and audit completeness: handlers run LIFO and
// the original error always re-surfaces.
func TestRollbackRunsHandlersLIFOAndReraisesOriginal(t *testing.T) {
	var order []string
	sentinel := errors.New("persist failed")

	audit, err := Run(context.Background(), "persist", "doc-1", nil, func(s *Scope) error {
		s.RegisterCompensation("delete-llm-file", func(ctx context.Context) error {
			order = append(order, "delete-llm-file")
			return nil
		})
		s.RegisterCompensation("delete-vector-file", func(ctx context.Context) error {
			order = append(order, "delete-vector-file")
			return nil
		})
		return sentinel
	})

	require.ErrorIs(t, err, sentinel)
	require.Equal(t, []string{"delete-vector-file", "delete-llm-file"}, order)
	require.Equal(t, StatusCompensated, audit.Status)
	require.NotNil(t, audit.RolledBackAt)
	require.Nil(t, audit.CommittedAt)
	require.Len(t, audit.Handlers, 2)
	for _, h := range audit.Handlers {
		require.Equal(t, HandlerRan, h.Status)
	}
}

func TestRollbackContinuesAfterHandlerFailure(t *testing.T) {
	sentinel := errors.New("boom")
	handlerErr := errors.New("cleanup also failed")
	var firstRan bool

	// Handlers run LIFO, so "second" fails before "first" gets its turn.
	audit, err := Run(context.Background(), "persist", "doc-2", nil, func(s *Scope) error {
		s.RegisterCompensation("first", func(ctx context.Context) error {
			firstRan = true
			return nil
		})
		s.RegisterCompensation("second", func(ctx context.Context) error {
			return handlerErr
		})
		return sentinel
	})

	require.ErrorIs(t, err, sentinel)
	require.True(t, firstRan, "remaining handlers must still run after one fails")
	require.Equal(t, StatusCompensationFailed, audit.Status)
	require.Len(t, audit.Handlers, 2)
}

func TestRollbackWithNoHandlersIsJustFailed(t *testing.T) {
	sentinel := errors.New("no side effects yet")
	audit, err := Run(context.Background(), "upload", "doc-3", nil, func(s *Scope) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, StatusFailed, audit.Status)
	require.Empty(t, audit.Handlers)
}

func TestCommitOrRollbackExactlyOneTimestamp(t *testing.T) {
	audit, _ := Run(context.Background(), "s", "d", nil, func(s *Scope) error { return nil })
	require.True(t, (audit.CommittedAt != nil) != (audit.RolledBackAt != nil))

	audit2, _ := Run(context.Background(), "s", "d", nil, func(s *Scope) error { return errors.New("x") })
	require.True(t, (audit2.CommittedAt != nil) != (audit2.RolledBackAt != nil))
}

func TestCleanupMultiRunsAllInReverse(t *testing.T) {
	var order []int
	h := CleanupMulti(
		func(ctx context.Context) error { order = append(order, 1); return nil },
		func(ctx context.Context) error { order = append(order, 2); return nil },
		func(ctx context.Context) error { order = append(order, 3); return nil },
	)
	require.NoError(t, h(context.Background()))
	require.Equal(t, []int{3, 2, 1}, order)
}
