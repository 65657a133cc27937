package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aegis-ai/aegis/memory"
	"github.com/aegis-ai/aegis/store"
)

// Store is the keyed storage the tracker requires. Create is an atomic
// check-and-insert; Update is optimistic on Progress.Version.
type Store interface {
	// CreateSession inserts a new record, failing with store.ErrAlreadyExists
	// when the (project, session) key is taken.
	CreateSession(ctx context.Context, p *Progress) error

	// GetSession fetches a consistent snapshot. Returns ErrNotFound for
	// unknown keys.
	GetSession(ctx context.Context, projectID, sessionID string) (*Progress, error)

	// UpdateSession applies an optimistic update: it succeeds only if the
	// stored version equals p.Version, incrementing p.Version on success,
	// and returns store.ErrConflict on a lost race.
	UpdateSession(ctx context.Context, p *Progress) error
}

// CreateRequest carries the inputs to Tracker.Create.
type CreateRequest struct {
	ProjectID  string
	SessionID  string
	Namespace  string
	AgentID    string
	UserID     string
	TotalItems int
	NextItems  []string
}

// AdvanceRequest carries the inputs to Tracker.Advance. Nil slices leave
// the corresponding list unchanged; empty non-nil slices clear it.
type AdvanceRequest struct {
	ProjectID string
	SessionID string

	// CompletedItem, when set, is appended to the completed list. If it
	// matches the in-progress item, the head of the next list is promoted
	// into in-progress.
	CompletedItem string

	NextItems    []string
	BlockedItems []string

	LastAction string
	Summary    string
}

// Tracker is the session-progress state machine.
type Tracker struct {
	store Store
}

// NewTracker creates a Tracker over the given store.
func NewTracker(st Store) *Tracker {
	return &Tracker{store: st}
}

// Create registers a new session in StatusActive. Fails with
// ErrSessionConflict when the (project, session) key already exists.
func (t *Tracker) Create(ctx context.Context, req CreateRequest) (*Progress, error) {
	if req.ProjectID == "" || req.SessionID == "" {
		return nil, fmt.Errorf("session: project and session ids required")
	}
	if req.Namespace == "" {
		req.Namespace = memory.DefaultNamespace
	}
	now := time.Now().UTC()
	p := &Progress{
		ProjectID:      req.ProjectID,
		SessionID:      req.SessionID,
		Namespace:      req.Namespace,
		AgentID:        req.AgentID,
		UserID:         req.UserID,
		Status:         StatusActive,
		TotalItems:     req.TotalItems,
		CompletedItems: []string{},
		NextItems:      append([]string{}, req.NextItems...),
		BlockedItems:   []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	if len(p.NextItems) > 0 {
		p.InProgressItem = p.NextItems[0]
		p.NextItems = p.NextItems[1:]
	}
	if err := t.store.CreateSession(ctx, p); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %s/%s", ErrSessionConflict, req.ProjectID, req.SessionID)
		}
		return nil, err
	}
	return p, nil
}

// Get fetches a session's progress.
func (t *Tracker) Get(ctx context.Context, projectID, sessionID string) (*Progress, error) {
	return t.store.GetSession(ctx, projectID, sessionID)
}

// Advance records checklist movement without changing status. Advancing a
// terminal session fails with ErrInvalidTransition. A concurrent writer
// surfaces as store.ErrConflict; re-read and retry.
func (t *Tracker) Advance(ctx context.Context, req AdvanceRequest) (*Progress, error) {
	p, err := t.store.GetSession(ctx, req.ProjectID, req.SessionID)
	if err != nil {
		return nil, err
	}
	if p.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot advance %s session", ErrInvalidTransition, p.Status)
	}

	if req.NextItems != nil {
		p.NextItems = append([]string{}, req.NextItems...)
	}
	if req.BlockedItems != nil {
		p.BlockedItems = append([]string{}, req.BlockedItems...)
	}
	if req.CompletedItem != "" {
		p.CompletedItems = append(p.CompletedItems, req.CompletedItem)
		if req.CompletedItem == p.InProgressItem {
			p.InProgressItem = ""
		}
	}
	if p.InProgressItem == "" && len(p.NextItems) > 0 {
		p.InProgressItem = p.NextItems[0]
		p.NextItems = p.NextItems[1:]
	}
	if req.LastAction != "" {
		p.LastAction = req.LastAction
	}
	if req.Summary != "" {
		p.Summary = req.Summary
	}
	p.UpdatedAt = time.Now().UTC()

	if err := t.store.UpdateSession(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SetStatus moves the session through the lifecycle, rejecting moves the
// transition table does not permit.
func (t *Tracker) SetStatus(ctx context.Context, projectID, sessionID string, next Status) (*Progress, error) {
	if err := next.Validate(); err != nil {
		return nil, err
	}
	p, err := t.store.GetSession(ctx, projectID, sessionID)
	if err != nil {
		return nil, err
	}
	if p.Status == next {
		return p, nil
	}
	if !p.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, next)
	}
	p.Status = next
	p.UpdatedAt = time.Now().UTC()
	if err := t.store.UpdateSession(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
