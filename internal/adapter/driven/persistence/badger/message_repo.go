package badger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
)

// MessageRepository stores each pending message under
// "msg:{hex client id}:{sequence padded}:{message id}" so a prefix scan
// yields one client's messages in arrival order.
type MessageRepository struct {
	db  *badger.DB
	seq *badger.Sequence
}

func NewMessageRepository(s *Store) *MessageRepository {
	return &MessageRepository{db: s.db, seq: s.seq}
}

type storedMessage struct {
	ID       string `json:"id"`
	Payload  []byte `json:"payload"`
	QueuedAt int64  `json:"queued_at"`
}

func messagePrefix(clientID domain.ClientID) []byte {
	return []byte("msg:" + hex.EncodeToString([]byte(clientID)) + ":")
}

func (r *MessageRepository) Append(ctx context.Context, msg domain.PendingMessage) error {
	n, err := r.seq.Next()
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%019d:%s", messagePrefix(msg.ClientID), n, msg.ID)
	val, err := json.Marshal(storedMessage{
		ID:       msg.ID.String(),
		Payload:  msg.Payload,
		QueuedAt: msg.QueuedAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

func (r *MessageRepository) Pending(ctx context.Context, clientID domain.ClientID) ([]domain.PendingMessage, error) {
	var out []domain.PendingMessage
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(clientID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var sm storedMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sm)
			}); err != nil {
				return err
			}
			id, err := domain.ParseMessageID(sm.ID)
			if err != nil {
				return err
			}
			out = append(out, domain.PendingMessage{
				ID:       id,
				ClientID: clientID,
				Payload:  sm.Payload,
				QueuedAt: time.Unix(0, sm.QueuedAt).UTC(),
			})
		}
		return nil
	})
	return out, err
}

func (r *MessageRepository) Delete(ctx context.Context, clientID domain.ClientID, id domain.MessageID) error {
	suffix := ":" + id.String()
	return r.db.Update(func(txn *badger.Txn) error {
		keys, err := r.keys(txn, clientID)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if len(k) >= len(suffix) && string(k[len(k)-len(suffix):]) == suffix {
				return txn.Delete(k)
			}
		}
		return nil
	})
}

func (r *MessageRepository) Purge(ctx context.Context, clientID domain.ClientID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		keys, err := r.keys(txn, clientID)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *MessageRepository) Count(ctx context.Context, clientID domain.ClientID) (int, error) {
	var n int
	err := r.db.View(func(txn *badger.Txn) error {
		keys, err := r.keys(txn, clientID)
		n = len(keys)
		return err
	})
	return n, err
}

func (r *MessageRepository) keys(txn *badger.Txn, clientID domain.ClientID) ([][]byte, error) {
	prefix := messagePrefix(clientID)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}
