// Package repository defines interfaces for data storage
package repository

import (
	"context"

	"github.com/navikt/myrooms/internal/models"
)

// ErrNotFound is returned by every implementation when a session has no state
var ErrNotFound = models.ErrSessionNotFound

// Repository stores the view state of each mounted session.
// State lives only as long as the session: implementations expire idle sessions.
type Repository interface {
	// CreateSession stores fresh state for a session, replacing any previous state
	CreateSession(ctx context.Context, state *models.ViewState) error
	GetViewState(ctx context.Context, sessionID string) (*models.ViewState, error)
	// ReplaceRooms swaps the whole room list; ErrNotFound if the session is gone
	ReplaceRooms(ctx context.Context, sessionID string, rooms []models.RoomSummary) error
	// SwapModalState sets the modal state and returns the previous one atomically
	SwapModalState(ctx context.Context, sessionID string, state models.ModalState) (models.ModalState, error)
	// Touch extends the idle lifetime of a session
	Touch(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]string, error)
}
