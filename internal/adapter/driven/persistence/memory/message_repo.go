package memory

import (
	"context"
	"sync"

	"github.com/Wyydra/duo/internal/core/domain"
)

type MessageRepository struct {
	mu       sync.Mutex
	messages map[domain.ClientID][]domain.PendingMessage
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		messages: make(map[domain.ClientID][]domain.PendingMessage),
	}
}

func (r *MessageRepository) Append(ctx context.Context, msg domain.PendingMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ClientID] = append(r.messages[msg.ClientID], msg)
	return nil
}

func (r *MessageRepository) Pending(ctx context.Context, clientID domain.ClientID) ([]domain.PendingMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PendingMessage, len(r.messages[clientID]))
	copy(out, r.messages[clientID])
	return out, nil
}

func (r *MessageRepository) Delete(ctx context.Context, clientID domain.ClientID, id domain.MessageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[clientID]
	for i, m := range msgs {
		if m.ID == id {
			msgs = append(msgs[:i:i], msgs[i+1:]...)
			break
		}
	}
	if len(msgs) == 0 {
		delete(r.messages, clientID)
		return nil
	}
	r.messages[clientID] = msgs
	return nil
}

func (r *MessageRepository) Purge(ctx context.Context, clientID domain.ClientID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, clientID)
	return nil
}

func (r *MessageRepository) Count(ctx context.Context, clientID domain.ClientID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages[clientID]), nil
}
