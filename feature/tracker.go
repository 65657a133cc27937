package feature

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aegis-ai/aegis/memory"
	"github.com/aegis-ai/aegis/store"
)

// Store is the keyed storage the tracker requires. CreateFeature is an
// atomic check-and-insert; UpdateFeature is optimistic on Tracker.Version.
type Store interface {
	// CreateFeature inserts a new record, failing with store.ErrAlreadyExists
	// when the (project, namespace, feature) key is taken.
	CreateFeature(ctx context.Context, f *Tracker) error

	// GetFeature fetches a consistent snapshot. Returns ErrNotFound for
	// unknown keys.
	GetFeature(ctx context.Context, projectID, namespace, featureID string) (*Tracker, error)

	// UpdateFeature applies an optimistic update: it succeeds only if the
	// stored version equals f.Version, incrementing f.Version on success,
	// and returns store.ErrConflict on a lost race.
	UpdateFeature(ctx context.Context, f *Tracker) error
}

// DeclareRequest carries the inputs to Service.Declare.
type DeclareRequest struct {
	ProjectID   string
	Namespace   string
	FeatureID   string
	Description string
	Category    string
	TestSteps   []string
}

// UpdateRequest carries the inputs to Service.UpdateStatus. Optional fields
// left empty preserve the stored values.
type UpdateRequest struct {
	ProjectID string
	Namespace string
	FeatureID string

	Status Status

	ImplementedBy       string
	ImplementationNotes string
	FailureReason       string
}

// ResultRequest carries a verification outcome for Service.RecordResult.
type ResultRequest struct {
	ProjectID string
	Namespace string
	FeatureID string

	Passes     bool
	VerifiedBy string

	// FailureReason is required when Passes is false.
	FailureReason string
}

// Service is the feature tracker.
type Service struct {
	store Store
}

// NewService creates a Service over the given store.
func NewService(st Store) *Service {
	return &Service{store: st}
}

// Declare registers a new feature in StatusNotStarted. Fails with
// ErrDuplicateFeature when the key already exists.
func (s *Service) Declare(ctx context.Context, req DeclareRequest) (*Tracker, error) {
	if req.ProjectID == "" || req.FeatureID == "" {
		return nil, fmt.Errorf("feature: project and feature ids required")
	}
	if req.Namespace == "" {
		req.Namespace = memory.DefaultNamespace
	}
	now := time.Now().UTC()
	f := &Tracker{
		ProjectID:   req.ProjectID,
		Namespace:   req.Namespace,
		FeatureID:   req.FeatureID,
		Description: req.Description,
		Category:    req.Category,
		TestSteps:   append([]string{}, req.TestSteps...),
		Status:      StatusNotStarted,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	if err := s.store.CreateFeature(ctx, f); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %s/%s/%s", ErrDuplicateFeature, req.ProjectID, req.Namespace, req.FeatureID)
		}
		return nil, err
	}
	return f, nil
}

// Get fetches a feature's tracker record.
func (s *Service) Get(ctx context.Context, projectID, namespace, featureID string) (*Tracker, error) {
	if namespace == "" {
		namespace = memory.DefaultNamespace
	}
	return s.store.GetFeature(ctx, projectID, namespace, featureID)
}

// UpdateStatus moves the feature through the state machine. Moving to
// StatusComplete requires a recorded passing result and a verifier; anything
// else fails with ErrStateViolation regardless of the transition table.
func (s *Service) UpdateStatus(ctx context.Context, req UpdateRequest) (*Tracker, error) {
	if err := req.Status.Validate(); err != nil {
		return nil, err
	}
	f, err := s.Get(ctx, req.ProjectID, req.Namespace, req.FeatureID)
	if err != nil {
		return nil, err
	}
	if f.Status != req.Status {
		if !f.Status.CanTransitionTo(req.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.Status, req.Status)
		}
		if req.Status == StatusComplete && !(f.Passes && f.VerifiedBy != "") {
			return nil, fmt.Errorf("%w: %s/%s", ErrStateViolation, f.ProjectID, f.FeatureID)
		}
		f.Status = req.Status
	}
	if req.ImplementedBy != "" {
		f.ImplementedBy = req.ImplementedBy
	}
	if req.ImplementationNotes != "" {
		f.ImplementationNotes = req.ImplementationNotes
	}
	if req.FailureReason != "" {
		f.FailureReason = req.FailureReason
	}
	f.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateFeature(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// RecordResult stores a verification outcome. A failing result forces the
// feature into StatusFailed and requires a reason; a passing result records
// the evidence that later permits the move to StatusComplete.
func (s *Service) RecordResult(ctx context.Context, req ResultRequest) (*Tracker, error) {
	f, err := s.Get(ctx, req.ProjectID, req.Namespace, req.FeatureID)
	if err != nil {
		return nil, err
	}
	if f.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: feature %s is %s", ErrInvalidTransition, f.FeatureID, f.Status)
	}
	if !req.Passes && req.FailureReason == "" {
		return nil, fmt.Errorf("%w: %s/%s", ErrMissingFailureReason, req.ProjectID, req.FeatureID)
	}

	f.Passes = req.Passes
	if req.VerifiedBy != "" {
		f.VerifiedBy = req.VerifiedBy
	}
	if req.Passes {
		f.FailureReason = ""
	} else {
		f.FailureReason = req.FailureReason
		f.Status = StatusFailed
	}
	f.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateFeature(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}
