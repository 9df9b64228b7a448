package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// SelfManagerLabel is shown as the manager of rooms the current user administers
const SelfManagerLabel = "본인"

// RoomID identifies a room. The room API sends it either as a JSON string or
// as a JSON number, both decode to the same decimal string.
type RoomID string

// UnmarshalJSON accepts both string and numeric room IDs
func (id *RoomID) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid room id: %w", err)
	}

	switch v := raw.(type) {
	case string:
		*id = RoomID(v)
	case float64:
		*id = RoomID(strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return fmt.Errorf("invalid room id type %T", raw)
	}
	return nil
}

// String returns the room ID as displayed in a row
func (id RoomID) String() string {
	return string(id)
}

// RoomSummary is the minimal data needed to render one room row
type RoomSummary struct {
	RoomID   RoomID `json:"roomId"`
	Title    string `json:"title"`
	IsAdmin  bool   `json:"isAdmin"`
	UserName string `json:"userName"`
}

// ManagerLabel returns the label shown in the manager column
func (s RoomSummary) ManagerLabel() string {
	if s.IsAdmin {
		return SelfManagerLabel
	}
	return s.UserName
}

// RoomRow is a rendered room row
type RoomRow struct {
	Key     string
	ID      string
	Name    string
	Manager string
}

// NewRoomRow converts a room summary into its row
func NewRoomRow(s RoomSummary) RoomRow {
	return RoomRow{
		Key:     s.RoomID.String(),
		ID:      s.RoomID.String(),
		Name:    s.Title,
		Manager: s.ManagerLabel(),
	}
}

// RowsFor converts summaries to rows, keeping the server order
func RowsFor(rooms []RoomSummary) []RoomRow {
	rows := make([]RoomRow, 0, len(rooms))
	for _, room := range rooms {
		rows = append(rows, NewRoomRow(room))
	}
	return rows
}
