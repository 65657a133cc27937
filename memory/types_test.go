package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashContent(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := HashContent("the user prefers concise answers")
		b := HashContent("the user prefers concise answers")
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("differs on content", func(t *testing.T) {
		a := HashContent("alpha")
		b := HashContent("beta")
		assert.NotEqual(t, a, b)
	})

	t.Run("whitespace matters", func(t *testing.T) {
		assert.NotEqual(t, HashContent("alpha"), HashContent("alpha "))
	})
}

func TestDedupKey(t *testing.T) {
	hash := HashContent("content")
	key := DedupKey("proj", "default", "agent-1", hash)
	assert.Equal(t, "proj/default/agent-1/"+hash, key)

	// Different agents never collide on identical content.
	other := DedupKey("proj", "default", "agent-2", hash)
	assert.NotEqual(t, key, other)
}

func TestScopeValidation(t *testing.T) {
	for _, s := range []Scope{ScopeAgentPrivate, ScopeAgentShared, ScopeGlobal} {
		assert.True(t, s.IsValid(), s)
		assert.NoError(t, s.Validate())
	}

	bad := Scope("team-wide")
	assert.False(t, bad.IsValid())
	err := bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("agent-shared")
	require.NoError(t, err)
	assert.Equal(t, ScopeAgentShared, s)

	_, err = ParseScope("everyone")
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestTypeValidation(t *testing.T) {
	for _, typ := range []Type{TypeStandard, TypeReflection, TypeCoordination} {
		assert.NoError(t, typ.Validate(), typ)
	}
	assert.ErrorIs(t, Type("episodic").Validate(), ErrInvalidType)
}

func TestVoteKind(t *testing.T) {
	assert.NoError(t, VoteHelpful.Validate())
	assert.NoError(t, VoteHarmful.Validate())
	assert.ErrorIs(t, VoteKind("neutral").Validate(), ErrInvalidVote)

	k, err := ParseVoteKind("harmful")
	require.NoError(t, err)
	assert.Equal(t, VoteHarmful, k)
}

func TestMemoryExpired(t *testing.T) {
	now := time.Now().UTC()

	t.Run("no expiry never expires", func(t *testing.T) {
		m := &Memory{}
		assert.False(t, m.Expired(now))
	})

	t.Run("future expiry", func(t *testing.T) {
		exp := now.Add(time.Hour)
		m := &Memory{ExpiresAt: &exp}
		assert.False(t, m.Expired(now))
	})

	t.Run("past expiry", func(t *testing.T) {
		exp := now.Add(-time.Second)
		m := &Memory{ExpiresAt: &exp}
		assert.True(t, m.Expired(now))
	})

	t.Run("exact boundary counts as expired", func(t *testing.T) {
		exp := now
		m := &Memory{ExpiresAt: &exp}
		assert.True(t, m.Expired(now))
	})
}

func TestMemorySharedWith(t *testing.T) {
	m := &Memory{SharedWithAgents: []string{"writer", "reviewer"}}
	assert.True(t, m.SharedWith("writer"))
	assert.False(t, m.SharedWith("stranger"))
	assert.False(t, m.SharedWith(""))
}
