package badger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
)

type RoomRepository struct {
	db *badger.DB
}

func NewRoomRepository(s *Store) *RoomRepository {
	return &RoomRepository{db: s.db}
}

type storedRoom struct {
	SlotA      string `json:"slot_a,omitempty"`
	SlotB      string `json:"slot_b,omitempty"`
	ConnectedA bool   `json:"connected_a"`
	ConnectedB bool   `json:"connected_b"`
}

func roomKey(key domain.RoomKey) []byte {
	return []byte("room:" + string(key))
}

func (r *RoomRepository) Get(ctx context.Context, key domain.RoomKey) (*domain.Room, bool, error) {
	var sr storedRoom
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sr)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &domain.Room{
		Key:        key,
		SlotA:      domain.UserID(sr.SlotA),
		SlotB:      domain.UserID(sr.SlotB),
		ConnectedA: sr.ConnectedA,
		ConnectedB: sr.ConnectedB,
	}, true, nil
}

func (r *RoomRepository) Save(ctx context.Context, room *domain.Room) error {
	val, err := json.Marshal(storedRoom{
		SlotA:      string(room.SlotA),
		SlotB:      string(room.SlotB),
		ConnectedA: room.ConnectedA,
		ConnectedB: room.ConnectedB,
	})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(roomKey(room.Key), val)
	})
}

func (r *RoomRepository) Delete(ctx context.Context, key domain.RoomKey) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(roomKey(key))
	})
}
