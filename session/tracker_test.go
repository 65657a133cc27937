package session_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-ai/aegis/memory"
	"github.com/aegis-ai/aegis/session"
	"github.com/aegis-ai/aegis/store"
	redisstore "github.com/aegis-ai/aegis/store/redis"
)

func newTracker(t *testing.T) (*session.Tracker, *redisstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	st := redisstore.NewWithClient(client)
	t.Cleanup(func() { _ = st.Close() })
	return session.NewTracker(st), st
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to session.Status
		ok       bool
	}{
		{session.StatusActive, session.StatusPaused, true},
		{session.StatusActive, session.StatusCompleted, true},
		{session.StatusActive, session.StatusFailed, true},
		{session.StatusPaused, session.StatusActive, true},
		{session.StatusPaused, session.StatusFailed, true},
		{session.StatusPaused, session.StatusCompleted, false},
		{session.StatusCompleted, session.StatusActive, false},
		{session.StatusFailed, session.StatusActive, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.False(t, session.StatusActive.IsTerminal())
	assert.False(t, session.StatusPaused.IsTerminal())
	assert.True(t, session.StatusCompleted.IsTerminal())
	assert.True(t, session.StatusFailed.IsTerminal())
}

func TestCreate(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	p, err := tr.Create(ctx, session.CreateRequest{
		ProjectID:  "proj",
		SessionID:  "sess-1",
		AgentID:    "researcher",
		TotalItems: 3,
		NextItems:  []string{"gather sources", "draft outline", "write summary"},
	})
	require.NoError(t, err)

	assert.Equal(t, session.StatusActive, p.Status)
	assert.Equal(t, memory.DefaultNamespace, p.Namespace)
	assert.Equal(t, "gather sources", p.InProgressItem, "head of the plan starts in progress")
	assert.Equal(t, []string{"draft outline", "write summary"}, p.NextItems)
	assert.Empty(t, p.CompletedItems)
	assert.Equal(t, int64(1), p.Version)

	t.Run("duplicate session id", func(t *testing.T) {
		_, err := tr.Create(ctx, session.CreateRequest{ProjectID: "proj", SessionID: "sess-1"})
		assert.ErrorIs(t, err, session.ErrSessionConflict)
	})

	t.Run("ids required", func(t *testing.T) {
		_, err := tr.Create(ctx, session.CreateRequest{ProjectID: "proj"})
		assert.Error(t, err)
	})

	t.Run("same id in another project is independent", func(t *testing.T) {
		_, err := tr.Create(ctx, session.CreateRequest{ProjectID: "other", SessionID: "sess-1"})
		assert.NoError(t, err)
	})
}

func TestAdvance(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	_, err := tr.Create(ctx, session.CreateRequest{
		ProjectID: "proj",
		SessionID: "sess-1",
		NextItems: []string{"step-1", "step-2", "step-3"},
	})
	require.NoError(t, err)

	t.Run("completing the in-progress item promotes the next", func(t *testing.T) {
		p, err := tr.Advance(ctx, session.AdvanceRequest{
			ProjectID:     "proj",
			SessionID:     "sess-1",
			CompletedItem: "step-1",
			LastAction:    "finished step-1",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"step-1"}, p.CompletedItems)
		assert.Equal(t, "step-2", p.InProgressItem)
		assert.Equal(t, []string{"step-3"}, p.NextItems)
		assert.Equal(t, "finished step-1", p.LastAction)
	})

	t.Run("nil slices leave lists unchanged", func(t *testing.T) {
		p, err := tr.Advance(ctx, session.AdvanceRequest{
			ProjectID: "proj",
			SessionID: "sess-1",
			Summary:   "checkpoint",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"step-3"}, p.NextItems)
		assert.Equal(t, "checkpoint", p.Summary)
	})

	t.Run("non-nil slices replace", func(t *testing.T) {
		p, err := tr.Advance(ctx, session.AdvanceRequest{
			ProjectID:    "proj",
			SessionID:    "sess-1",
			NextItems:    []string{"revised-step"},
			BlockedItems: []string{"step-3"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"revised-step"}, p.NextItems)
		assert.Equal(t, []string{"step-3"}, p.BlockedItems)
	})

	t.Run("terminal session rejects advance", func(t *testing.T) {
		_, err := tr.SetStatus(ctx, "proj", "sess-1", session.StatusCompleted)
		require.NoError(t, err)

		_, err = tr.Advance(ctx, session.AdvanceRequest{
			ProjectID:     "proj",
			SessionID:     "sess-1",
			CompletedItem: "late item",
		})
		assert.ErrorIs(t, err, session.ErrInvalidTransition)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := tr.Advance(ctx, session.AdvanceRequest{ProjectID: "proj", SessionID: "nope"})
		assert.ErrorIs(t, err, session.ErrNotFound)
	})
}

func TestSetStatus(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	_, err := tr.Create(ctx, session.CreateRequest{ProjectID: "proj", SessionID: "sess-1"})
	require.NoError(t, err)

	t.Run("pause and resume", func(t *testing.T) {
		p, err := tr.SetStatus(ctx, "proj", "sess-1", session.StatusPaused)
		require.NoError(t, err)
		assert.Equal(t, session.StatusPaused, p.Status)

		p, err = tr.SetStatus(ctx, "proj", "sess-1", session.StatusActive)
		require.NoError(t, err)
		assert.Equal(t, session.StatusActive, p.Status)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		_, err := tr.SetStatus(ctx, "proj", "sess-1", session.StatusActive)
		assert.NoError(t, err)
	})

	t.Run("paused cannot complete", func(t *testing.T) {
		_, err := tr.SetStatus(ctx, "proj", "sess-1", session.StatusPaused)
		require.NoError(t, err)
		_, err = tr.SetStatus(ctx, "proj", "sess-1", session.StatusCompleted)
		assert.ErrorIs(t, err, session.ErrInvalidTransition)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		_, err := tr.SetStatus(ctx, "proj", "sess-1", session.Status("resting"))
		assert.ErrorIs(t, err, session.ErrInvalidStatus)
	})

	t.Run("terminal states are final", func(t *testing.T) {
		_, err := tr.SetStatus(ctx, "proj", "sess-1", session.StatusFailed)
		require.NoError(t, err)
		_, err = tr.SetStatus(ctx, "proj", "sess-1", session.StatusActive)
		assert.ErrorIs(t, err, session.ErrInvalidTransition)
	})
}

func TestOptimisticConflict(t *testing.T) {
	tr, st := newTracker(t)
	ctx := context.Background()

	created, err := tr.Create(ctx, session.CreateRequest{ProjectID: "proj", SessionID: "sess-1"})
	require.NoError(t, err)

	stale := *created
	fresh := *created

	fresh.Summary = "first writer"
	require.NoError(t, st.UpdateSession(ctx, &fresh))

	stale.Summary = "second writer"
	err = st.UpdateSession(ctx, &stale)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.True(t, store.IsRetryable(err))
}
