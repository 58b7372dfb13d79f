package service

import (
	"context"
	"fmt"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/port"
	"github.com/rs/zerolog/log"
)

// RoomService owns every read-mutate-persist sequence on rooms. Work on one
// room key is serialized; different keys never wait on each other.
type RoomService struct {
	rooms   port.RoomRepository
	mailbox *Mailbox
	metrics port.RelayMetrics
	locks   *keyedMutex
}

func NewRoomService(rooms port.RoomRepository, mailbox *Mailbox, metrics port.RelayMetrics) *RoomService {
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	return &RoomService{
		rooms:   rooms,
		mailbox: mailbox,
		metrics: metrics,
		locks:   newKeyedMutex(),
	}
}

type JoinOptions struct {
	// Loopback puts the new user in both slots of a fresh room.
	Loopback bool
	// ForceFull answers as if the room were full.
	ForceFull bool
}

type Seat struct {
	Room      *domain.Room
	User      domain.UserID
	Initiator bool
}

// Join seats a freshly generated user in the room, creating it when needed.
func (s *RoomService) Join(ctx context.Context, key domain.RoomKey, opts JoinOptions) (Seat, error) {
	if key == "" {
		return Seat{}, domain.ErrEmptyRoomKey
	}
	if opts.ForceFull {
		return Seat{}, domain.ErrRoomFull
	}

	unlock := s.locks.Lock(string(key))
	defer unlock()

	room, ok, err := s.rooms.Get(ctx, key)
	if err != nil {
		return Seat{}, fmt.Errorf("get room %s: %w", key, err)
	}

	user := domain.NewUserID()
	seat := Seat{User: user}
	switch {
	case !ok:
		room = domain.NewRoom(key)
		if err := room.AddUser(user); err != nil {
			return Seat{}, err
		}
		if opts.Loopback {
			if err := room.AddUser(user); err != nil {
				return Seat{}, err
			}
			seat.Initiator = true
		}
		s.metrics.RoomOpened()
	case room.Occupancy() == 1:
		if err := room.AddUser(user); err != nil {
			return Seat{}, err
		}
		seat.Initiator = true
	default:
		log.Info().Str("room", key.String()).Msg("Room is full")
		return Seat{}, domain.ErrRoomFull
	}

	if err := s.rooms.Save(ctx, room); err != nil {
		return Seat{}, fmt.Errorf("save room %s: %w", key, err)
	}
	log.Info().Str("room", key.String()).Str("user", user.String()).Str("state", room.String()).Msg("User added to room")
	seat.Room = room.Clone()
	return seat, nil
}

// Snapshot returns a copy of the current room state.
func (s *RoomService) Snapshot(ctx context.Context, key domain.RoomKey) (*domain.Room, error) {
	unlock := s.locks.Lock(string(key))
	defer unlock()

	room, ok, err := s.rooms.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrUnknownRoom
	}
	return room, nil
}

// Update runs fn on the room while holding its lock and persists the result
// when fn reports a change. A room left with no occupants is deleted.
func (s *RoomService) Update(ctx context.Context, key domain.RoomKey, fn func(room *domain.Room) (changed bool, err error)) error {
	unlock := s.locks.Lock(string(key))
	defer unlock()

	room, ok, err := s.rooms.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get room %s: %w", key, err)
	}
	if !ok {
		return domain.ErrUnknownRoom
	}

	changed, err := fn(room)
	if err != nil || !changed {
		return err
	}
	return s.persist(ctx, room)
}

// Evict removes user from room and drops everything still queued for them.
// It must run inside Update.
func (s *RoomService) Evict(ctx context.Context, room *domain.Room, user domain.UserID) (bool, error) {
	if !room.HasUser(user) {
		return false, nil
	}
	if err := s.mailbox.Purge(ctx, domain.NewClientID(room.Key, user)); err != nil {
		return false, err
	}
	room.RemoveUser(user)
	log.Info().Str("room", room.Key.String()).Str("user", user.String()).Str("state", room.String()).Msg("User removed from room")
	return true, nil
}

func (s *RoomService) persist(ctx context.Context, room *domain.Room) error {
	if room.Occupancy() == 0 {
		if err := s.rooms.Delete(ctx, room.Key); err != nil {
			return fmt.Errorf("delete room %s: %w", room.Key, err)
		}
		s.metrics.RoomClosed()
		log.Info().Str("room", room.Key.String()).Msg("Room closed")
		return nil
	}
	if err := s.rooms.Save(ctx, room); err != nil {
		return fmt.Errorf("save room %s: %w", room.Key, err)
	}
	return nil
}
