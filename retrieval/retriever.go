package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aegis-ai/aegis/memory"
	"github.com/aegis-ai/aegis/store"
)

// RankingConfig is the tuning surface for the composite rerank.
// Zero values fall back to the defaults below.
type RankingConfig struct {
	// SimilarityWeight scales the raw cosine similarity. Default 1.0.
	SimilarityWeight float64 `yaml:"similarity_weight"`

	// VoteWeight scales the curation signal
	// log1p(helpful) - log1p(harmful). Default 0.1.
	VoteWeight float64 `yaml:"vote_weight"`

	// RecencyWeight scales the recency bonus, which decays exponentially
	// with age since UpdatedAt. Default 0.05.
	RecencyWeight float64 `yaml:"recency_weight"`

	// RecencyHalfLife controls the recency decay. Default 168h (one week).
	RecencyHalfLife time.Duration `yaml:"recency_half_life"`

	// Overscan multiplies k during candidate generation so scope and
	// lifecycle filtering still leaves enough survivors. Default 4.
	Overscan int `yaml:"overscan"`
}

// DefaultRanking returns the default ranking configuration.
func DefaultRanking() RankingConfig {
	return RankingConfig{
		SimilarityWeight: 1.0,
		VoteWeight:       0.1,
		RecencyWeight:    0.05,
		RecencyHalfLife:  168 * time.Hour,
		Overscan:         4,
	}
}

func (c RankingConfig) withDefaults() RankingConfig {
	d := DefaultRanking()
	if c.SimilarityWeight == 0 {
		c.SimilarityWeight = d.SimilarityWeight
	}
	if c.VoteWeight == 0 {
		c.VoteWeight = d.VoteWeight
	}
	if c.RecencyWeight == 0 {
		c.RecencyWeight = d.RecencyWeight
	}
	if c.RecencyHalfLife <= 0 {
		c.RecencyHalfLife = d.RecencyHalfLife
	}
	if c.Overscan <= 0 {
		c.Overscan = d.Overscan
	}
	return c
}

// Request describes one similarity search.
type Request struct {
	ProjectID string
	Namespace string // defaults to memory.DefaultNamespace
	Query     []float32
	Requester memory.Accessor

	// K caps the result length. Defaults to 10.
	K int

	// IncludeDeprecated admits deprecated memories (audit reads).
	// Expired memories are never admitted.
	IncludeDeprecated bool
}

// Result is a ranked retrieval hit.
type Result struct {
	memory.Memory

	// Similarity is the raw cosine similarity to the query.
	Similarity float64 `json:"similarity"`

	// Score is the composite ranking score the ordering is based on.
	Score float64 `json:"score"`
}

// Retriever answers scoped similarity queries. Reads never block writers;
// each candidate is hydrated as an individual consistent snapshot.
type Retriever struct {
	repo  *memory.Repository
	index store.VectorIndex
	cfg   RankingConfig
}

// NewRetriever creates a Retriever with the given ranking configuration.
func NewRetriever(repo *memory.Repository, idx store.VectorIndex, cfg RankingConfig) *Retriever {
	return &Retriever{repo: repo, index: idx, cfg: cfg.withDefaults()}
}

// Search returns up to req.K readable memories ranked by the composite
// score, ties broken by more recent UpdatedAt. Candidates the requester
// cannot read, expired candidates, and (by default) deprecated candidates
// are discarded silently. An empty list is returned when nothing survives.
func (r *Retriever) Search(ctx context.Context, req Request) ([]Result, error) {
	if req.ProjectID == "" {
		return nil, fmt.Errorf("retrieval: project id required")
	}
	if len(req.Query) == 0 {
		return nil, fmt.Errorf("retrieval: query embedding required")
	}
	if req.Namespace == "" {
		req.Namespace = memory.DefaultNamespace
	}
	if req.K <= 0 {
		req.K = 10
	}

	candidates, err := r.index.Query(ctx, req.ProjectID, req.Namespace, req.Query, req.K*r.cfg.Overscan)
	if err != nil {
		return nil, fmt.Errorf("ann query: %w", err)
	}

	now := time.Now().UTC()
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		rec, err := r.repo.Get(ctx, req.ProjectID, c.ID)
		if err != nil {
			// The index may briefly hold entries for records that were
			// deleted underneath it; they simply drop out.
			if errors.Is(err, memory.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !memory.Readable(req.Requester, rec, now, req.IncludeDeprecated) {
			continue
		}
		sim := float64(c.Similarity)
		results = append(results, Result{
			Memory:     *rec,
			Similarity: sim,
			Score:      r.score(sim, rec, now),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].UpdatedAt.Equal(results[j].UpdatedAt) {
			return results[i].UpdatedAt.After(results[j].UpdatedAt)
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > req.K {
		results = results[:req.K]
	}
	return results, nil
}

// score blends similarity with the curation signal and a recency bonus.
// Helpful votes raise the score logarithmically, harmful votes lower it
// symmetrically, and the recency term decays with age since UpdatedAt.
func (r *Retriever) score(similarity float64, m *memory.Memory, now time.Time) float64 {
	voteSignal := math.Log1p(float64(m.HelpfulCount)) - math.Log1p(float64(m.HarmfulCount))
	age := now.Sub(m.UpdatedAt)
	if age < 0 {
		age = 0
	}
	recency := math.Exp(-age.Seconds() / r.cfg.RecencyHalfLife.Seconds())
	return r.cfg.SimilarityWeight*similarity + r.cfg.VoteWeight*voteSignal + r.cfg.RecencyWeight*recency
}
