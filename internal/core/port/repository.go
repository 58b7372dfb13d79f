package port

import (
	"context"

	"github.com/Wyydra/duo/internal/core/domain"
)

// RoomRepository is the room registry. Get never creates a room.
type RoomRepository interface {
	Get(ctx context.Context, key domain.RoomKey) (*domain.Room, bool, error)
	Save(ctx context.Context, room *domain.Room) error
	Delete(ctx context.Context, key domain.RoomKey) error
}

// MessageRepository holds pending messages per client id in arrival order.
type MessageRepository interface {
	Append(ctx context.Context, msg domain.PendingMessage) error
	Pending(ctx context.Context, clientID domain.ClientID) ([]domain.PendingMessage, error)
	Delete(ctx context.Context, clientID domain.ClientID, id domain.MessageID) error
	Purge(ctx context.Context, clientID domain.ClientID) error
	Count(ctx context.Context, clientID domain.ClientID) (int, error)
}
