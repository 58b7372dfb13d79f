package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

// MessageRepository keeps pending messages in a list per client id, oldest
// at the head.
type MessageRepository struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewMessageRepository(rdb redis.UniversalClient, prefix string) *MessageRepository {
	return &MessageRepository{rdb: rdb, prefix: prefix}
}

type storedMessage struct {
	ID       string `json:"id"`
	Payload  []byte `json:"payload"`
	QueuedAt int64  `json:"queued_at"`
}

func (r *MessageRepository) key(clientID domain.ClientID) string {
	return r.prefix + "mailbox:" + string(clientID)
}

func (r *MessageRepository) Append(ctx context.Context, msg domain.PendingMessage) error {
	raw, err := json.Marshal(storedMessage{
		ID:       msg.ID.String(),
		Payload:  msg.Payload,
		QueuedAt: msg.QueuedAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	return r.rdb.RPush(ctx, r.key(msg.ClientID), raw).Err()
}

func (r *MessageRepository) Pending(ctx context.Context, clientID domain.ClientID) ([]domain.PendingMessage, error) {
	items, err := r.rdb.LRange(ctx, r.key(clientID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.PendingMessage, 0, len(items))
	for _, item := range items {
		msg, err := decode(clientID, item)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r *MessageRepository) Delete(ctx context.Context, clientID domain.ClientID, id domain.MessageID) error {
	key := r.key(clientID)
	items, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return err
	}
	for _, item := range items {
		msg, err := decode(clientID, item)
		if err != nil {
			return err
		}
		if msg.ID == id {
			return r.rdb.LRem(ctx, key, 1, item).Err()
		}
	}
	return nil
}

func (r *MessageRepository) Purge(ctx context.Context, clientID domain.ClientID) error {
	return r.rdb.Del(ctx, r.key(clientID)).Err()
}

func (r *MessageRepository) Count(ctx context.Context, clientID domain.ClientID) (int, error) {
	n, err := r.rdb.LLen(ctx, r.key(clientID)).Result()
	return int(n), err
}

func decode(clientID domain.ClientID, item string) (domain.PendingMessage, error) {
	var sm storedMessage
	if err := json.Unmarshal([]byte(item), &sm); err != nil {
		return domain.PendingMessage{}, fmt.Errorf("decode pending message: %w", err)
	}
	id, err := domain.ParseMessageID(sm.ID)
	if err != nil {
		return domain.PendingMessage{}, fmt.Errorf("decode pending message id: %w", err)
	}
	return domain.PendingMessage{
		ID:       id,
		ClientID: clientID,
		Payload:  sm.Payload,
		QueuedAt: time.Unix(0, sm.QueuedAt).UTC(),
	}, nil
}
