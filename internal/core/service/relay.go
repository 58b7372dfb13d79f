package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/port"
	"github.com/rs/zerolog/log"
)

const DefaultTokenTimeout = 30 * time.Minute

// Relay routes signaling envelopes between the two users of a room and
// handles their channel connect and disconnect notices.
type Relay struct {
	rooms    *RoomService
	mailbox  *Mailbox
	gateway  port.DeliveryGateway
	metrics  port.RelayMetrics
	tokenTTL time.Duration
}

type RelayOption func(*Relay)

func WithTokenTimeout(d time.Duration) RelayOption {
	return func(r *Relay) { r.tokenTTL = d }
}

func WithMetrics(m port.RelayMetrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

func NewRelay(rooms *RoomService, mailbox *Mailbox, gateway port.DeliveryGateway, opts ...RelayOption) *Relay {
	r := &Relay{
		rooms:    rooms,
		mailbox:  mailbox,
		gateway:  gateway,
		metrics:  port.NopMetrics{},
		tokenTTL: DefaultTokenTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) TokenTimeout() time.Duration {
	return r.tokenTTL
}

type JoinResult struct {
	Seat
	Token string
}

// Join seats a new user and issues the token for their channel.
func (r *Relay) Join(ctx context.Context, key domain.RoomKey, opts JoinOptions) (JoinResult, error) {
	seat, err := r.rooms.Join(ctx, key, opts)
	if err != nil {
		return JoinResult{}, err
	}
	token, err := r.gateway.IssueToken(ctx, domain.NewClientID(key, seat.User), r.tokenTTL)
	if err != nil {
		return JoinResult{}, fmt.Errorf("issue token: %w", err)
	}
	return JoinResult{Seat: seat, Token: token}, nil
}

// outbound is a routing decision taken under the room lock and carried out
// after it is released.
type outbound struct {
	to  domain.ClientID
	env domain.Envelope
}

// HandleMessage dispatches one envelope posted by from in room key.
func (r *Relay) HandleMessage(ctx context.Context, key domain.RoomKey, from domain.UserID, raw []byte) error {
	env, err := domain.ParseEnvelope(raw)
	if err != nil {
		return err
	}
	l := log.With().Str("room", key.String()).Str("user", from.String()).Str("type", string(env.Type)).Logger()

	var out *outbound
	err = r.rooms.Update(ctx, key, func(room *domain.Room) (bool, error) {
		if !room.HasUser(from) {
			switch env.Type {
			case domain.MessageTokenRequest:
				return false, fmt.Errorf("%w: %s is not in room %s", domain.ErrInvalidUser, from, key)
			case domain.MessageBye:
				l.Debug().Msg("Bye from user not in room")
			default:
				l.Debug().Msg("Sender not in room, dropping message")
				r.metrics.Dropped("unknown_sender")
			}
			return false, nil
		}

		switch env.Type {
		case domain.MessageTokenRequest:
			return false, nil
		case domain.MessageBye:
			removed, err := r.rooms.Evict(ctx, room, from)
			if err != nil {
				return false, err
			}
			l.Info().Str("state", room.String()).Msg("User quit room")
			return removed, nil
		}

		other, ok := room.OtherUser(from)
		if !ok {
			l.Debug().Msg("No peer in room, dropping message")
			r.metrics.Dropped("no_peer")
			return false, nil
		}

		if env.Type == domain.MessageOffer && other == from {
			answer, err := domain.LoopbackAnswer(env)
			if err != nil {
				return false, err
			}
			env = answer
		}

		o, err := r.route(ctx, room, other, env)
		out = o
		return false, err
	})
	if err != nil {
		return err
	}

	if env.Type == domain.MessageTokenRequest {
		return r.sendToken(ctx, domain.NewClientID(key, from))
	}
	if out != nil {
		r.deliver(ctx, *out)
	}
	return nil
}

// Connect handles a channel connect notice.
func (r *Relay) Connect(ctx context.Context, key domain.RoomKey, user domain.UserID) error {
	err := r.rooms.Update(ctx, key, func(room *domain.Room) (bool, error) {
		if !room.SetConnected(user) {
			return false, domain.ErrInvalidUser
		}
		return true, nil
	})
	if errors.Is(err, domain.ErrUnknownRoom) || errors.Is(err, domain.ErrInvalidUser) {
		log.Warn().Str("room", key.String()).Str("user", user.String()).Msg("Unexpected connect notice")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info().Str("room", key.String()).Str("user", user.String()).Msg("User connected to room")

	clientID := domain.NewClientID(key, user)
	n, err := r.mailbox.DrainAndDeliver(ctx, clientID, func(ctx context.Context, payload []byte) error {
		return r.gateway.Push(ctx, clientID, payload)
	})
	for i := 0; i < n; i++ {
		r.metrics.Delivered()
	}
	if err != nil {
		r.metrics.DeliveryFailed()
		log.Error().Err(err).Str("client_id", clientID.String()).Int("delivered", n).Msg("Failed to drain saved messages")
	}
	return nil
}

// Disconnect handles a channel disconnect notice: the user leaves the room
// and the remaining peer is told to hang up.
func (r *Relay) Disconnect(ctx context.Context, key domain.RoomKey, user domain.UserID) error {
	var out *outbound
	err := r.rooms.Update(ctx, key, func(room *domain.Room) (bool, error) {
		if !room.HasUser(user) {
			return false, domain.ErrInvalidUser
		}
		other, hasOther := room.OtherUser(user)
		removed, err := r.rooms.Evict(ctx, room, user)
		if err != nil || !removed {
			return removed, err
		}
		if hasOther && other != user {
			o, err := r.route(ctx, room, other, domain.ByeEnvelope())
			if err != nil {
				log.Error().Err(err).Str("room", key.String()).Str("user", other.String()).Msg("Failed to queue bye")
			}
			out = o
		}
		return true, nil
	})
	if errors.Is(err, domain.ErrUnknownRoom) || errors.Is(err, domain.ErrInvalidUser) {
		log.Warn().Str("room", key.String()).Str("user", user.String()).Msg("Disconnect notice for user not in room")
		return nil
	}
	if err != nil {
		return err
	}
	if out != nil {
		r.deliver(ctx, *out)
		log.Info().Str("room", key.String()).Str("to", out.to.String()).Msg("Sent bye")
	}
	return nil
}

// route decides how env reaches user. Offline users get the message queued
// right away, still under the room lock, so a concurrent connect notice
// drains it. Online users get an outbound to push once the lock is released.
func (r *Relay) route(ctx context.Context, room *domain.Room, user domain.UserID, env domain.Envelope) (*outbound, error) {
	clientID := domain.NewClientID(room.Key, user)
	if connected, _ := room.IsConnected(user); connected {
		return &outbound{to: clientID, env: env}, nil
	}
	if err := r.mailbox.Append(ctx, clientID, env.Raw); err != nil {
		r.metrics.Dropped("mailbox")
		return nil, err
	}
	r.metrics.Queued()
	log.Info().Str("client_id", clientID.String()).Str("type", string(env.Type)).Msg("Saved message for user")
	return nil, nil
}

// deliver pushes through the gateway behind anything still saved for the
// recipient. A failed push leaves the message saved so it is replayed on the
// next connect.
func (r *Relay) deliver(ctx context.Context, o outbound) {
	l := log.With().Str("client_id", o.to.String()).Str("type", string(o.env.Type)).Logger()
	d, err := r.mailbox.Deliver(ctx, o.to, o.env.Raw, func(ctx context.Context, payload []byte) error {
		return r.gateway.Push(ctx, o.to, payload)
	})
	for i := 0; i < d.Replayed; i++ {
		r.metrics.Delivered()
	}
	if d.Pushed {
		r.metrics.Delivered()
		l.Debug().Int("replayed", d.Replayed).Msg("Delivered message")
		return
	}
	if d.Err != nil {
		r.metrics.DeliveryFailed()
		l.Warn().Err(d.Err).Msg("Push failed, saving message")
	}
	if err != nil {
		r.metrics.Dropped("mailbox")
		l.Error().Err(err).Msg("Failed to save undelivered message")
		return
	}
	r.metrics.Queued()
}

// sendToken answers a token request directly. Tokens are never queued.
func (r *Relay) sendToken(ctx context.Context, clientID domain.ClientID) error {
	token, err := r.gateway.IssueToken(ctx, clientID, r.tokenTTL)
	if err != nil {
		return fmt.Errorf("issue token for %s: %w", clientID, err)
	}
	env, err := domain.TokenResponseEnvelope(token)
	if err != nil {
		return err
	}
	if err := r.gateway.Push(ctx, clientID, env.Raw); err != nil {
		r.metrics.DeliveryFailed()
		return fmt.Errorf("%w: token response to %s: %v", domain.ErrDeliveryFailed, clientID, err)
	}
	r.metrics.Delivered()
	return nil
}
