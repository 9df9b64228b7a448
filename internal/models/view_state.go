package models

import "time"

// ViewState is the state owned by one mounted room list view
type ViewState struct {
	SessionID string        `json:"session_id"`
	Rooms     []RoomSummary `json:"rooms"`
	Modal     ModalState    `json:"modal"`
	MountedAt time.Time     `json:"mounted_at"`
	UpdatedAt time.Time     `json:"updated_at,omitempty"`
}

// NewViewState returns the state of a freshly mounted view: no rooms, modal closed
func NewViewState(sessionID string, now time.Time) *ViewState {
	return &ViewState{
		SessionID: sessionID,
		Rooms:     []RoomSummary{},
		Modal:     ModalClosed,
		MountedAt: now,
		UpdatedAt: now,
	}
}

// Rows returns the rendered rows for the current room list
func (v *ViewState) Rows() []RoomRow {
	return RowsFor(v.Rooms)
}

// ModalOpen reports whether the join-room modal is shown
func (v *ViewState) ModalOpen() bool {
	return v.Modal == ModalOpen
}
