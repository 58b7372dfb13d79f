package memory

import (
	"context"
	"sync"

	"github.com/Wyydra/duo/internal/core/domain"
)

type RoomRepository struct {
	mu    sync.RWMutex
	rooms map[domain.RoomKey]domain.Room
}

func NewRoomRepository() *RoomRepository {
	return &RoomRepository{
		rooms: make(map[domain.RoomKey]domain.Room),
	}
}

func (r *RoomRepository) Get(ctx context.Context, key domain.RoomKey) (*domain.Room, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[key]
	if !ok {
		return nil, false, nil
	}
	return &room, true, nil
}

func (r *RoomRepository) Save(ctx context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.Key] = *room
	return nil
}

func (r *RoomRepository) Delete(ctx context.Context, key domain.RoomKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, key)
	return nil
}

func (r *RoomRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
