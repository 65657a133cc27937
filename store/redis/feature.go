package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aegis-ai/aegis/feature"
	"github.com/aegis-ai/aegis/store"
)

// CreateFeature inserts a new feature record, failing with
// store.ErrAlreadyExists when the key is taken.
func (s *Store) CreateFeature(ctx context.Context, f *feature.Tracker) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal feature %s: %w", f.FeatureID, err)
	}
	ok, err := s.client.SetNX(ctx, featureKey(f.ProjectID, f.Namespace, f.FeatureID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store feature %s: %w", f.FeatureID, err)
	}
	if !ok {
		return fmt.Errorf("%w: feature %s", store.ErrAlreadyExists, f.FeatureID)
	}
	return nil
}

// GetFeature fetches a feature record by key.
func (s *Store) GetFeature(ctx context.Context, projectID, namespace, featureID string) (*feature.Tracker, error) {
	raw, err := s.client.Get(ctx, featureKey(projectID, namespace, featureID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", feature.ErrNotFound, featureID)
		}
		return nil, fmt.Errorf("failed to get feature %s: %w", featureID, err)
	}
	var f feature.Tracker
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feature %s: %w", featureID, err)
	}
	return &f, nil
}

// UpdateFeature applies an optimistic update guarded by WATCH, returning
// store.ErrConflict on a lost race.
func (s *Store) UpdateFeature(ctx context.Context, f *feature.Tracker) error {
	key := featureKey(f.ProjectID, f.Namespace, f.FeatureID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", feature.ErrNotFound, f.FeatureID)
			}
			return fmt.Errorf("failed to read feature %s: %w", f.FeatureID, err)
		}
		var cur feature.Tracker
		if err := json.Unmarshal([]byte(raw), &cur); err != nil {
			return fmt.Errorf("failed to unmarshal feature %s: %w", f.FeatureID, err)
		}
		if cur.Version != f.Version {
			return fmt.Errorf("%w: feature %s at version %d, caller held %d",
				store.ErrConflict, f.FeatureID, cur.Version, f.Version)
		}

		next := *f
		next.CreatedAt = cur.CreatedAt
		next.Version = cur.Version + 1

		data, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("failed to marshal feature %s: %w", f.FeatureID, err)
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		}); err != nil {
			return err
		}

		*f = next
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: feature %s modified concurrently", store.ErrConflict, f.FeatureID)
	}
	return err
}
