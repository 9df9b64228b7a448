// Package memory provides an in-memory implementation of the repository interface
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/navikt/myrooms/internal/models"
)

// ErrNotFound is returned when a session has no state
var ErrNotFound = models.ErrSessionNotFound

// sessionState is the stored state of one session
type sessionState struct {
	rooms      []models.RoomSummary
	modal      models.ModalState
	mountedAt  time.Time
	updatedAt  time.Time
	lastActive time.Time
}

// Repository implements the repository interface with in-memory storage
type Repository struct {
	sessions map[string]*sessionState
	ttl      time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

// NewRepository creates a new in-memory repository. Sessions idle longer than
// ttl are treated as gone; a ttl of 0 keeps them until deleted.
func NewRepository(ttl time.Duration) *Repository {
	return &Repository{
		sessions: make(map[string]*sessionState),
		ttl:      ttl,
		now:      time.Now,
	}
}

// lookup returns the live state of a session, dropping it if it expired.
// Caller must hold r.mu.
func (r *Repository) lookup(sessionID string) (*sessionState, bool) {
	state, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if r.ttl > 0 && r.now().Sub(state.lastActive) > r.ttl {
		delete(r.sessions, sessionID)
		return nil, false
	}
	return state, true
}

// CreateSession stores fresh state for a session
func (r *Repository) CreateSession(ctx context.Context, state *models.ViewState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sessions[state.SessionID] = &sessionState{
		rooms:      copyRooms(state.Rooms),
		modal:      state.Modal,
		mountedAt:  state.MountedAt,
		updatedAt:  state.UpdatedAt,
		lastActive: now,
	}
	return nil
}

// GetViewState returns a copy of the session state
func (r *Repository) GetViewState(ctx context.Context, sessionID string) (*models.ViewState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.lookup(sessionID)
	if !ok {
		return nil, ErrNotFound
	}

	return &models.ViewState{
		SessionID: sessionID,
		Rooms:     copyRooms(state.rooms),
		Modal:     state.modal,
		MountedAt: state.mountedAt,
		UpdatedAt: state.updatedAt,
	}, nil
}

// ReplaceRooms replaces the whole room list of a session
func (r *Repository) ReplaceRooms(ctx context.Context, sessionID string, rooms []models.RoomSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.lookup(sessionID)
	if !ok {
		return ErrNotFound
	}

	now := r.now()
	state.rooms = copyRooms(rooms)
	state.updatedAt = now
	state.lastActive = now
	return nil
}

// SwapModalState sets the modal state and returns the previous one
func (r *Repository) SwapModalState(ctx context.Context, sessionID string, modal models.ModalState) (models.ModalState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.lookup(sessionID)
	if !ok {
		return models.ModalClosed, ErrNotFound
	}

	previous := state.modal
	state.modal = modal
	state.lastActive = r.now()
	return previous, nil
}

// Touch marks the session as active
func (r *Repository) Touch(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.lookup(sessionID)
	if !ok {
		return ErrNotFound
	}
	state.lastActive = r.now()
	return nil
}

// DeleteSession removes a session
func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lookup(sessionID); !ok {
		return ErrNotFound
	}
	delete(r.sessions, sessionID)
	return nil
}

// ListSessions returns the IDs of all live sessions
func (r *Repository) ListSessions(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		if _, ok := r.lookup(id); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// copyRooms keeps stored lists independent of caller slices
func copyRooms(rooms []models.RoomSummary) []models.RoomSummary {
	out := make([]models.RoomSummary, len(rooms))
	copy(out, rooms)
	return out
}
