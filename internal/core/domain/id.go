package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

type RoomKey string
type UserID string

// ClientID addresses a single user inside a single room: "<room>/<user>".
type ClientID string

var roomKeyDisallowed = regexp.MustCompile(`[^a-zA-Z0-9\-]`)

// SanitizeRoomKey replaces every character outside [A-Za-z0-9-] with '-'.
func SanitizeRoomKey(raw string) RoomKey {
	return RoomKey(roomKeyDisallowed.ReplaceAllString(raw, "-"))
}

func (k RoomKey) String() string {
	return string(k)
}

func NewUserID() UserID {
	return UserID(uuid.New().String())
}

func (u UserID) String() string {
	return string(u)
}

func (u UserID) Validate() error {
	if u == "" || strings.Contains(string(u), "/") {
		return ErrInvalidUser
	}
	return nil
}

func NewClientID(room RoomKey, user UserID) ClientID {
	return ClientID(string(room) + "/" + string(user))
}

// ParseClientID splits a client identifier back into its room key and user.
func ParseClientID(s string) (RoomKey, UserID, error) {
	room, user, ok := strings.Cut(s, "/")
	if !ok || room == "" || user == "" || strings.Contains(user, "/") {
		return "", "", ErrInvalidClientID
	}
	return RoomKey(room), UserID(user), nil
}

func (id ClientID) String() string {
	return string(id)
}

// RandomDigits returns n random decimal digits, used for generated room keys.
func RandomDigits(n int) (string, error) {
	var sb strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("random digits: %w", err)
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}

type MessageID uuid.UUID

func NewMessageID() MessageID {
	return MessageID(uuid.New())
}

func ParseMessageID(s string) (MessageID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return MessageID{}, err
	}
	return MessageID(id), nil
}

func (id MessageID) String() string {
	return uuid.UUID(id).String()
}
