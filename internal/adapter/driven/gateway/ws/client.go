package ws

import "github.com/Wyydra/duo/internal/core/domain"

type Client interface {
	ID() domain.ClientID
	// Send queues payload for the client without blocking.
	Send(payload []byte) error
	Close() error
}
