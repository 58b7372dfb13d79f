package domain

import (
	"errors"
	"time"
)

// PendingMessage is a payload held for a client that was not connected when
// it was routed.
type PendingMessage struct {
	ID       MessageID
	ClientID ClientID
	Payload  []byte
	QueuedAt time.Time
}

func NewPendingMessage(clientID ClientID, payload []byte) (*PendingMessage, error) {
	if len(payload) == 0 {
		return nil, errors.New("pending message payload cannot be empty")
	}
	return &PendingMessage{
		ID:       NewMessageID(),
		ClientID: clientID,
		Payload:  payload,
		QueuedAt: time.Now().UTC(),
	}, nil
}
