package domain

import (
	"fmt"
	"strings"
)

type RoomState int

const (
	RoomEmpty RoomState = iota
	RoomOpen
	RoomFull
)

func (s RoomState) String() string {
	switch s {
	case RoomEmpty:
		return "empty"
	case RoomOpen:
		return "open"
	case RoomFull:
		return "full"
	default:
		return fmt.Sprintf("RoomState(%d)", int(s))
	}
}

// Room pairs at most two users. Slots are compacted on removal so SlotB is
// never occupied while SlotA is empty, and a connected flag is never set on
// an empty slot.
//
// In loopback mode the same user occupies both slots.
type Room struct {
	Key        RoomKey
	SlotA      UserID
	SlotB      UserID
	ConnectedA bool
	ConnectedB bool
}

func NewRoom(key RoomKey) *Room {
	return &Room{Key: key}
}

func (r *Room) Occupancy() int {
	n := 0
	if r.SlotA != "" {
		n++
	}
	if r.SlotB != "" {
		n++
	}
	return n
}

func (r *Room) State() RoomState {
	switch r.Occupancy() {
	case 0:
		return RoomEmpty
	case 1:
		return RoomOpen
	default:
		return RoomFull
	}
}

func (r *Room) AddUser(user UserID) error {
	if err := user.Validate(); err != nil {
		return err
	}
	switch {
	case r.SlotA == "":
		r.SlotA = user
		r.ConnectedA = false
	case r.SlotB == "":
		r.SlotB = user
		r.ConnectedB = false
	default:
		return ErrRoomFull
	}
	return nil
}

// RemoveUser clears every slot held by user and reports whether anything
// changed. Unknown users are a no-op.
func (r *Room) RemoveUser(user UserID) bool {
	if !r.HasUser(user) {
		return false
	}
	if user == r.SlotB {
		r.SlotB = ""
		r.ConnectedB = false
	}
	if user == r.SlotA {
		r.SlotA, r.ConnectedA = r.SlotB, r.ConnectedB
		r.SlotB, r.ConnectedB = "", false
	}
	return true
}

// OtherUser returns the occupant of the slot not held by user.
func (r *Room) OtherUser(user UserID) (UserID, bool) {
	var other UserID
	switch {
	case user == "":
		return "", false
	case user == r.SlotA:
		other = r.SlotB
	case user == r.SlotB:
		other = r.SlotA
	}
	return other, other != ""
}

func (r *Room) HasUser(user UserID) bool {
	return user != "" && (user == r.SlotA || user == r.SlotB)
}

// IsConnected reports the connected flag of user; known is false when the
// user does not occupy the room.
func (r *Room) IsConnected(user UserID) (connected, known bool) {
	switch {
	case user == "":
		return false, false
	case user == r.SlotA:
		return r.ConnectedA, true
	case user == r.SlotB:
		return r.ConnectedB, true
	}
	return false, false
}

// SetConnected marks user as connected. There is no inverse: a disconnect
// removes the user from the room.
func (r *Room) SetConnected(user UserID) bool {
	if !r.HasUser(user) {
		return false
	}
	if user == r.SlotA {
		r.ConnectedA = true
	}
	if user == r.SlotB {
		r.ConnectedB = true
	}
	return true
}

func (r *Room) Users() []UserID {
	out := make([]UserID, 0, 2)
	if r.SlotA != "" {
		out = append(out, r.SlotA)
	}
	if r.SlotB != "" {
		out = append(out, r.SlotB)
	}
	return out
}

func (r *Room) Clone() *Room {
	c := *r
	return &c
}

// String renders the occupancy for logs, e.g. "[alice-true bob-false]".
func (r *Room) String() string {
	parts := make([]string, 0, 2)
	if r.SlotA != "" {
		parts = append(parts, fmt.Sprintf("%s-%t", r.SlotA, r.ConnectedA))
	}
	if r.SlotB != "" {
		parts = append(parts, fmt.Sprintf("%s-%t", r.SlotB, r.ConnectedB))
	}
	return "[" + strings.Join(parts, " ") + "]"
}
