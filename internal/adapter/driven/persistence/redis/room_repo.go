package redis

import (
	"context"
	"strconv"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

const (
	fieldSlotA      = "slot_a"
	fieldSlotB      = "slot_b"
	fieldConnectedA = "connected_a"
	fieldConnectedB = "connected_b"
)

// RoomRepository keeps each room in a hash under "<prefix>room:<key>".
type RoomRepository struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRoomRepository(rdb redis.UniversalClient, prefix string) *RoomRepository {
	return &RoomRepository{rdb: rdb, prefix: prefix}
}

func (r *RoomRepository) key(room domain.RoomKey) string {
	return r.prefix + "room:" + string(room)
}

func (r *RoomRepository) Get(ctx context.Context, key domain.RoomKey) (*domain.Room, bool, error) {
	fields, err := r.rdb.HGetAll(ctx, r.key(key)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	room := domain.NewRoom(key)
	room.SlotA = domain.UserID(fields[fieldSlotA])
	room.SlotB = domain.UserID(fields[fieldSlotB])
	room.ConnectedA, _ = strconv.ParseBool(fields[fieldConnectedA])
	room.ConnectedB, _ = strconv.ParseBool(fields[fieldConnectedB])
	return room, true, nil
}

func (r *RoomRepository) Save(ctx context.Context, room *domain.Room) error {
	_, err := r.rdb.HSet(ctx, r.key(room.Key),
		fieldSlotA, string(room.SlotA),
		fieldSlotB, string(room.SlotB),
		fieldConnectedA, strconv.FormatBool(room.ConnectedA),
		fieldConnectedB, strconv.FormatBool(room.ConnectedB),
	).Result()
	return err
}

func (r *RoomRepository) Delete(ctx context.Context, key domain.RoomKey) error {
	return r.rdb.Del(ctx, r.key(key)).Err()
}
