package feature_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-ai/aegis/feature"
	"github.com/aegis-ai/aegis/memory"
	"github.com/aegis-ai/aegis/store"
	redisstore "github.com/aegis-ai/aegis/store/redis"
)

func newService(t *testing.T) (*feature.Service, *redisstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	st := redisstore.NewWithClient(client)
	t.Cleanup(func() { _ = st.Close() })
	return feature.NewService(st), st
}

func declare(t *testing.T, svc *feature.Service, featureID string) *feature.Tracker {
	t.Helper()
	f, err := svc.Declare(context.Background(), feature.DeclareRequest{
		ProjectID:   "proj",
		FeatureID:   featureID,
		Description: "search endpoint returns ranked results",
		TestSteps:   []string{"issue query", "check ordering"},
	})
	require.NoError(t, err)
	return f
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to feature.Status
		ok       bool
	}{
		{feature.StatusNotStarted, feature.StatusInProgress, true},
		{feature.StatusNotStarted, feature.StatusTesting, false},
		{feature.StatusInProgress, feature.StatusBlocked, true},
		{feature.StatusInProgress, feature.StatusTesting, true},
		{feature.StatusInProgress, feature.StatusFailed, true},
		{feature.StatusInProgress, feature.StatusComplete, false},
		{feature.StatusBlocked, feature.StatusInProgress, true},
		{feature.StatusBlocked, feature.StatusTesting, false},
		{feature.StatusTesting, feature.StatusComplete, true},
		{feature.StatusTesting, feature.StatusFailed, true},
		{feature.StatusFailed, feature.StatusInProgress, true},
		{feature.StatusFailed, feature.StatusComplete, false},
		{feature.StatusComplete, feature.StatusInProgress, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.True(t, feature.StatusComplete.IsTerminal())
	assert.False(t, feature.StatusFailed.IsTerminal())
}

func TestDeclare(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	f := declare(t, svc, "search-ranking")
	assert.Equal(t, feature.StatusNotStarted, f.Status)
	assert.Equal(t, memory.DefaultNamespace, f.Namespace)
	assert.False(t, f.Passes)
	assert.Equal(t, int64(1), f.Version)

	t.Run("duplicate key rejected", func(t *testing.T) {
		_, err := svc.Declare(ctx, feature.DeclareRequest{
			ProjectID: "proj",
			FeatureID: "search-ranking",
		})
		assert.ErrorIs(t, err, feature.ErrDuplicateFeature)
	})

	t.Run("same id in another namespace is independent", func(t *testing.T) {
		_, err := svc.Declare(ctx, feature.DeclareRequest{
			ProjectID: "proj",
			Namespace: "experiments",
			FeatureID: "search-ranking",
		})
		assert.NoError(t, err)
	})

	t.Run("ids required", func(t *testing.T) {
		_, err := svc.Declare(ctx, feature.DeclareRequest{ProjectID: "proj"})
		assert.Error(t, err)
	})
}

func TestUpdateStatus(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	declare(t, svc, "feat")

	update := func(status feature.Status) (*feature.Tracker, error) {
		return svc.UpdateStatus(ctx, feature.UpdateRequest{
			ProjectID: "proj",
			FeatureID: "feat",
			Status:    status,
		})
	}

	t.Run("walk the happy path", func(t *testing.T) {
		f, err := update(feature.StatusInProgress)
		require.NoError(t, err)
		assert.Equal(t, feature.StatusInProgress, f.Status)

		f, err = update(feature.StatusTesting)
		require.NoError(t, err)
		assert.Equal(t, feature.StatusTesting, f.Status)
	})

	t.Run("illegal transition rejected", func(t *testing.T) {
		_, err := update(feature.StatusBlocked)
		assert.ErrorIs(t, err, feature.ErrInvalidTransition)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		_, err := update(feature.Status("shipping"))
		assert.ErrorIs(t, err, feature.ErrInvalidStatus)
	})

	t.Run("optional fields preserved when empty", func(t *testing.T) {
		f, err := svc.UpdateStatus(ctx, feature.UpdateRequest{
			ProjectID:     "proj",
			FeatureID:     "feat",
			Status:        feature.StatusTesting,
			ImplementedBy: "coder",
		})
		require.NoError(t, err)
		assert.Equal(t, "coder", f.ImplementedBy)

		f, err = update(feature.StatusTesting)
		require.NoError(t, err)
		assert.Equal(t, "coder", f.ImplementedBy)
	})
}

func TestCompletionGate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	declare(t, svc, "gated")

	_, err := svc.UpdateStatus(ctx, feature.UpdateRequest{
		ProjectID: "proj", FeatureID: "gated", Status: feature.StatusInProgress,
	})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, feature.UpdateRequest{
		ProjectID: "proj", FeatureID: "gated", Status: feature.StatusTesting,
	})
	require.NoError(t, err)

	t.Run("complete without a result is blocked", func(t *testing.T) {
		_, err := svc.UpdateStatus(ctx, feature.UpdateRequest{
			ProjectID: "proj", FeatureID: "gated", Status: feature.StatusComplete,
		})
		assert.ErrorIs(t, err, feature.ErrStateViolation)
	})

	t.Run("failing result needs a reason", func(t *testing.T) {
		_, err := svc.RecordResult(ctx, feature.ResultRequest{
			ProjectID: "proj", FeatureID: "gated",
			Passes: false, VerifiedBy: "qa",
		})
		assert.ErrorIs(t, err, feature.ErrMissingFailureReason)
	})

	t.Run("failing result forces failed", func(t *testing.T) {
		f, err := svc.RecordResult(ctx, feature.ResultRequest{
			ProjectID: "proj", FeatureID: "gated",
			Passes: false, VerifiedBy: "qa",
			FailureReason: "ordering is unstable under ties",
		})
		require.NoError(t, err)
		assert.Equal(t, feature.StatusFailed, f.Status)
		assert.False(t, f.Passes)
		assert.Equal(t, "ordering is unstable under ties", f.FailureReason)
	})

	t.Run("retry then pass then complete", func(t *testing.T) {
		_, err := svc.UpdateStatus(ctx, feature.UpdateRequest{
			ProjectID: "proj", FeatureID: "gated", Status: feature.StatusInProgress,
		})
		require.NoError(t, err)
		_, err = svc.UpdateStatus(ctx, feature.UpdateRequest{
			ProjectID: "proj", FeatureID: "gated", Status: feature.StatusTesting,
		})
		require.NoError(t, err)

		f, err := svc.RecordResult(ctx, feature.ResultRequest{
			ProjectID: "proj", FeatureID: "gated",
			Passes: true, VerifiedBy: "qa",
		})
		require.NoError(t, err)
		assert.True(t, f.Passes)
		assert.Equal(t, "qa", f.VerifiedBy)
		assert.Empty(t, f.FailureReason, "passing result clears the old reason")

		f, err = svc.UpdateStatus(ctx, feature.UpdateRequest{
			ProjectID: "proj", FeatureID: "gated", Status: feature.StatusComplete,
		})
		require.NoError(t, err)
		assert.Equal(t, feature.StatusComplete, f.Status)
	})

	t.Run("complete is terminal", func(t *testing.T) {
		_, err := svc.RecordResult(ctx, feature.ResultRequest{
			ProjectID: "proj", FeatureID: "gated",
			Passes: false, FailureReason: "late regression",
		})
		assert.ErrorIs(t, err, feature.ErrInvalidTransition)
	})
}

func TestFeatureOptimisticConflict(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	created := declare(t, svc, "contended")

	stale := *created
	fresh := *created

	fresh.ImplementationNotes = "first writer"
	require.NoError(t, st.UpdateFeature(ctx, &fresh))

	stale.ImplementationNotes = "second writer"
	err := st.UpdateFeature(ctx, &stale)
	assert.ErrorIs(t, err, store.ErrConflict)
}
