package port

import (
	"context"
	"time"

	"github.com/Wyydra/duo/internal/core/domain"
)

// DeliveryGateway pushes payloads to connected clients and issues the
// short-lived tokens clients use to open their channel.
type DeliveryGateway interface {
	Push(ctx context.Context, clientID domain.ClientID, payload []byte) error
	IssueToken(ctx context.Context, clientID domain.ClientID, ttl time.Duration) (string, error)
}
