package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aegis-ai/aegis/memory"
	"github.com/aegis-ai/aegis/store"
)

// hashReserveAttempts bounds the re-read loop when a reservation read races
// a concurrent release.
const hashReserveAttempts = 3

// PutRecord inserts a new memory record and, when the record carries an
// expiry, registers it in the expiry sorted set.
func (s *Store) PutRecord(ctx context.Context, m *memory.Memory) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal memory %s: %w", m.ID, err)
	}

	ok, err := s.client.SetNX(ctx, memKey(m.ProjectID, m.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store memory %s: %w", m.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: memory %s", store.ErrAlreadyExists, m.ID)
	}

	if m.ExpiresAt != nil {
		member := expiryMember(m.ProjectID, m.ID)
		z := redis.Z{Score: float64(m.ExpiresAt.UnixMilli()), Member: member}
		if err := s.client.ZAdd(ctx, expiryKey, z).Err(); err != nil {
			return fmt.Errorf("failed to register expiry for %s: %w", m.ID, err)
		}
	}
	return nil
}

// GetRecord fetches a memory record by id.
func (s *Store) GetRecord(ctx context.Context, projectID, id string) (*memory.Memory, error) {
	raw, err := s.client.Get(ctx, memKey(projectID, id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get memory %s: %w", id, err)
	}
	var m memory.Memory
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal memory %s: %w", id, err)
	}
	return &m, nil
}

// UpdateRecord applies an optimistic update guarded by WATCH. The write
// succeeds only when the stored version still equals m.Version; a lost race
// surfaces as store.ErrConflict. Content, ContentHash, and CreatedAt keep
// their stored values regardless of what the caller passed.
func (s *Store) UpdateRecord(ctx context.Context, m *memory.Memory) error {
	key := memKey(m.ProjectID, m.ID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", memory.ErrNotFound, m.ID)
			}
			return fmt.Errorf("failed to read memory %s: %w", m.ID, err)
		}
		var cur memory.Memory
		if err := json.Unmarshal([]byte(raw), &cur); err != nil {
			return fmt.Errorf("failed to unmarshal memory %s: %w", m.ID, err)
		}
		if cur.Version != m.Version {
			return fmt.Errorf("%w: memory %s at version %d, caller held %d",
				store.ErrConflict, m.ID, cur.Version, m.Version)
		}

		next := *m
		next.Content = cur.Content
		next.ContentHash = cur.ContentHash
		next.CreatedAt = cur.CreatedAt
		next.Version = cur.Version + 1

		data, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("failed to marshal memory %s: %w", m.ID, err)
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		}); err != nil {
			return err
		}

		*m = next
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: memory %s modified concurrently", store.ErrConflict, m.ID)
	}
	return err
}

// DeleteRecord removes a memory and cascades: its vote events and counters,
// its expiry entry, its dedup reservation, and its outgoing supersession
// edge all go with it.
func (s *Store) DeleteRecord(ctx context.Context, projectID, id string) error {
	m, err := s.GetRecord(ctx, projectID, id)
	if err != nil {
		return err
	}

	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, memKey(projectID, id))
		pipe.Del(ctx, votesKey(projectID, id))
		pipe.Del(ctx, voteCountKey(projectID, id))
		pipe.ZRem(ctx, expiryKey, expiryMember(projectID, id))
		if m.SupersededBy != "" {
			pipe.SRem(ctx, refsKey(projectID, m.SupersededBy), id)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to delete memory %s: %w", id, err)
	}

	key := memory.DedupKey(m.ProjectID, m.Namespace, m.AgentID, m.ContentHash)
	return s.releaseHashFor(ctx, key, id)
}

// ReserveHash atomically claims a dedup key for id. The existing claimant's
// id is returned on a lost race.
func (s *Store) ReserveHash(ctx context.Context, key, id string) (string, bool, error) {
	k := hashKey(key)
	for attempt := 0; attempt < hashReserveAttempts; attempt++ {
		won, err := s.client.SetNX(ctx, k, id, 0).Result()
		if err != nil {
			return "", false, fmt.Errorf("failed to reserve hash: %w", err)
		}
		if won {
			return "", true, nil
		}
		existing, err := s.client.Get(ctx, k).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Reservation released between SETNX and GET; try again.
				continue
			}
			return "", false, fmt.Errorf("failed to read hash reservation: %w", err)
		}
		return existing, false, nil
	}
	return "", false, fmt.Errorf("%w: hash reservation contended", store.ErrTimeout)
}

// ReleaseHash drops a dedup reservation unconditionally. Releasing an
// unclaimed key is a no-op.
func (s *Store) ReleaseHash(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, hashKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release hash reservation: %w", err)
	}
	return nil
}

// releaseHashFor drops a reservation only while it still maps to id, so a
// delete cascade cannot evict a reservation some newer memory re-claimed.
func (s *Store) releaseHashFor(ctx context.Context, key, id string) error {
	if err := s.releaseClaim(ctx, hashKey(key), id); err != nil {
		return fmt.Errorf("failed to release hash reservation: %w", err)
	}
	return nil
}

// releaseClaim deletes k only while it still holds want. A claim re-taken
// by another writer between the check and the delete is left in place.
func (s *Store) releaseClaim(ctx context.Context, k, want string) error {
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		if cur != want {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			return nil
		})
		return err
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		// Another writer moved the claim; nothing left to release.
		return nil
	}
	return err
}

// AddVote records a vote event and increments its counter in one MULTI/EXEC
// unit. The idempotency key is claimed first with SETNX; a replay returns
// the original vote id without moving any counter.
func (s *Store) AddVote(ctx context.Context, v *memory.Vote, idemKey string) (string, bool, error) {
	idemK := voteIdemKey(v.ProjectID, idemKey)
	won, err := s.client.SetNX(ctx, idemK, v.ID, 0).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to claim vote idempotency key: %w", err)
	}
	if !won {
		existing, err := s.client.Get(ctx, idemK).Result()
		if err != nil {
			return "", false, fmt.Errorf("failed to read consumed idempotency key: %w", err)
		}
		return existing, false, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal vote %s: %w", v.ID, err)
	}
	field := "helpful"
	if v.Kind == memory.VoteHarmful {
		field = "harmful"
	}
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, votesKey(v.ProjectID, v.MemoryID), data)
		pipe.HIncrBy(ctx, voteCountKey(v.ProjectID, v.MemoryID), field, 1)
		return nil
	}); err != nil {
		// A failed write must not consume the idempotency key: the retry
		// has to record the vote, not find a claim for one that never
		// landed. The release is value-checked so a concurrent writer's
		// claim survives.
		if relErr := s.releaseClaim(context.WithoutCancel(ctx), idemK, v.ID); relErr != nil {
			err = errors.Join(err, relErr)
		}
		return "", false, fmt.Errorf("failed to record vote %s: %w", v.ID, err)
	}
	return v.ID, true, nil
}

// VoteCounts reads the helpful and harmful counters for a memory. A memory
// that never received votes reads as zero on both.
func (s *Store) VoteCounts(ctx context.Context, projectID, memoryID string) (int64, int64, error) {
	counts, err := s.client.HGetAll(ctx, voteCountKey(projectID, memoryID)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read vote counts for %s: %w", memoryID, err)
	}
	var helpful, harmful int64
	if raw, ok := counts["helpful"]; ok {
		if helpful, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("invalid helpful count for %s: %w", memoryID, err)
		}
	}
	if raw, ok := counts["harmful"]; ok {
		if harmful, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("invalid harmful count for %s: %w", memoryID, err)
		}
	}
	return helpful, harmful, nil
}

// ListVotes returns the recorded vote events for a memory, oldest first.
func (s *Store) ListVotes(ctx context.Context, projectID, memoryID string) ([]memory.Vote, error) {
	raws, err := s.client.LRange(ctx, votesKey(projectID, memoryID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list votes for %s: %w", memoryID, err)
	}
	votes := make([]memory.Vote, 0, len(raws))
	for _, raw := range raws {
		var v memory.Vote
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal vote for %s: %w", memoryID, err)
		}
		votes = append(votes, v)
	}
	return votes, nil
}

// ExpiredRefs returns up to limit entries whose expiry passed at now,
// oldest expiries first.
func (s *Store) ExpiredRefs(ctx context.Context, now time.Time, limit int) ([]memory.Ref, error) {
	members, err := s.client.ZRangeByScore(ctx, expiryKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan expiry set: %w", err)
	}
	refs := make([]memory.Ref, 0, len(members))
	for _, member := range members {
		ref, ok := parseExpiryMember(member)
		if !ok {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// ClearExpiry removes entries from the expiry sorted set.
func (s *Store) ClearExpiry(ctx context.Context, refs []memory.Ref) error {
	if len(refs) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(refs))
	for _, ref := range refs {
		members = append(members, expiryMember(ref.ProjectID, ref.ID))
	}
	if err := s.client.ZRem(ctx, expiryKey, members...).Err(); err != nil {
		return fmt.Errorf("failed to clear expiry entries: %w", err)
	}
	return nil
}

// AddReference records that referrerID points at targetID.
func (s *Store) AddReference(ctx context.Context, projectID, targetID, referrerID string) error {
	if err := s.client.SAdd(ctx, refsKey(projectID, targetID), referrerID).Err(); err != nil {
		return fmt.Errorf("failed to record reference %s -> %s: %w", referrerID, targetID, err)
	}
	return nil
}

// HasReferences reports whether any live memory still points at id.
func (s *Store) HasReferences(ctx context.Context, projectID, id string) (bool, error) {
	n, err := s.client.SCard(ctx, refsKey(projectID, id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to count references to %s: %w", id, err)
	}
	return n > 0, nil
}

// expiryMember encodes a (project, id) pair as a sorted-set member. The id
// is a UUID, so splitting on the final separator is unambiguous even when
// project ids contain the separator themselves.
func expiryMember(projectID, id string) string {
	return projectID + "/" + id
}

func parseExpiryMember(member string) (memory.Ref, bool) {
	i := strings.LastIndex(member, "/")
	if i < 0 {
		return memory.Ref{}, false
	}
	return memory.Ref{ProjectID: member[:i], ID: member[i+1:]}, true
}
