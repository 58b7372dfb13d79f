package domain

import "errors"

var (
	ErrRoomFull          = errors.New("room is full")
	ErrUnknownRoom       = errors.New("unknown room")
	ErrEmptyRoomKey      = errors.New("empty room key")
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrDeliveryFailed    = errors.New("delivery failed")

	ErrInvalidUser        = errors.New("invalid user id")
	ErrInvalidClientID    = errors.New("invalid client id")
	ErrClientNotConnected = errors.New("client not connected")
	ErrMailboxFull        = errors.New("mailbox full")
	ErrInvalidToken       = errors.New("invalid token")
)
