package web

import (
	"context"

	"github.com/navikt/myrooms/internal/models"
	"github.com/navikt/myrooms/internal/roomapi"
)

// ViewServicer defines the contract for the room list views used by web handlers
type ViewServicer interface {
	Mount(ctx context.Context, sessionID string, creds roomapi.Credentials) (*models.ViewState, error)
	OpenModal(ctx context.Context, sessionID string, creds roomapi.Credentials) error
	CloseModal(ctx context.Context, sessionID string, creds roomapi.Credentials, event models.ModalEvent) error
	EnterRoom(ctx context.Context, sessionID string, creds roomapi.Credentials, req roomapi.EnterRoomRequest) error
	State(ctx context.Context, sessionID string) (*models.ViewState, error)
	Unmount(ctx context.Context, sessionID string) error
}
