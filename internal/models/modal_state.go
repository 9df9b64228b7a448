package models

// ModalState represents whether the join-room modal is shown
type ModalState int

const (
	ModalClosed ModalState = iota
	ModalOpen
)

// String returns the string representation of a modal state
func (s ModalState) String() string {
	switch s {
	case ModalClosed:
		return "closed"
	case ModalOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ModalEvent is a user action on the join-room modal
type ModalEvent int

const (
	ModalEventOpen ModalEvent = iota
	ModalEventSave
	ModalEventCancel
)

// String returns the string representation of a modal event
func (e ModalEvent) String() string {
	switch e {
	case ModalEventOpen:
		return "open"
	case ModalEventSave:
		return "save"
	case ModalEventCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

var modalTransitions = map[ModalState]map[ModalEvent]ModalState{
	ModalClosed: {
		ModalEventOpen: ModalOpen,
	},
	ModalOpen: {
		ModalEventSave:   ModalClosed,
		ModalEventCancel: ModalClosed,
	},
}

// Next returns the state reached by applying the event.
// ok is false when the event is not a transition from s, in which case s is returned unchanged.
func (s ModalState) Next(event ModalEvent) (next ModalState, ok bool) {
	next, ok = modalTransitions[s][event]
	if !ok {
		return s, false
	}
	return next, true
}

// TargetState returns the state an event leads to regardless of the current state
func (e ModalEvent) TargetState() ModalState {
	if e == ModalEventOpen {
		return ModalOpen
	}
	return ModalClosed
}

// TriggersRefetch reports whether moving from one state to another must refresh the room list.
// Only closing an open modal does.
func TriggersRefetch(from, to ModalState) bool {
	return from == ModalOpen && to == ModalClosed
}
