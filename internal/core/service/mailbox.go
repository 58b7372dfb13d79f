package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/port"
	"github.com/rs/zerolog/log"
)

// DeliverFunc pushes one payload. A nil error means the payload was handed
// off and may be forgotten.
type DeliverFunc func(ctx context.Context, payload []byte) error

// Mailbox is the store-and-forward area for clients that are not connected.
// Every push to a client id goes through its lock so nothing overtakes a
// message still waiting in the store.
type Mailbox struct {
	repo  port.MessageRepository
	limit int
	locks *keyedMutex

	// acked holds messages that were delivered but could not be deleted.
	// They are skipped by later drains until the delete goes through.
	ackedMu sync.Mutex
	acked   map[domain.ClientID]map[domain.MessageID]struct{}
}

// NewMailbox returns a mailbox holding at most limit messages per client id.
// A limit of zero disables the cap.
func NewMailbox(repo port.MessageRepository, limit int) *Mailbox {
	return &Mailbox{
		repo:  repo,
		limit: limit,
		locks: newKeyedMutex(),
		acked: make(map[domain.ClientID]map[domain.MessageID]struct{}),
	}
}

func (m *Mailbox) Append(ctx context.Context, clientID domain.ClientID, payload []byte) error {
	unlock := m.locks.Lock(string(clientID))
	defer unlock()
	return m.append(ctx, clientID, payload)
}

func (m *Mailbox) append(ctx context.Context, clientID domain.ClientID, payload []byte) error {
	msg, err := domain.NewPendingMessage(clientID, payload)
	if err != nil {
		return err
	}
	if m.limit > 0 {
		n, err := m.repo.Count(ctx, clientID)
		if err != nil {
			return fmt.Errorf("count pending for %s: %w", clientID, err)
		}
		if n >= m.limit {
			return fmt.Errorf("%w: %s holds %d messages", domain.ErrMailboxFull, clientID, n)
		}
	}
	return m.repo.Append(ctx, *msg)
}

// DrainAndDeliver delivers every pending message for clientID in arrival
// order, deleting each one right after it is delivered. It stops at the first
// failed delivery so nothing overtakes a message still waiting.
func (m *Mailbox) DrainAndDeliver(ctx context.Context, clientID domain.ClientID, deliver DeliverFunc) (int, error) {
	unlock := m.locks.Lock(string(clientID))
	defer unlock()
	return m.drain(ctx, clientID, deliver)
}

func (m *Mailbox) drain(ctx context.Context, clientID domain.ClientID, deliver DeliverFunc) (int, error) {
	pending, err := m.repo.Pending(ctx, clientID)
	if err != nil {
		return 0, fmt.Errorf("load pending for %s: %w", clientID, err)
	}

	delivered := 0
	for _, msg := range pending {
		if m.isAcked(clientID, msg.ID) {
			if err := m.repo.Delete(ctx, clientID, msg.ID); err == nil {
				m.forget(clientID, msg.ID)
			}
			continue
		}
		if err := deliver(ctx, msg.Payload); err != nil {
			return delivered, fmt.Errorf("%w: %s: %v", domain.ErrDeliveryFailed, clientID, err)
		}
		delivered++
		if err := m.repo.Delete(ctx, clientID, msg.ID); err != nil {
			m.ack(clientID, msg.ID)
			return delivered, fmt.Errorf("delete delivered message %s: %w", msg.ID, err)
		}
		log.Debug().Str("client_id", clientID.String()).Str("message_id", msg.ID.String()).Msg("Delivered saved message")
	}
	return delivered, nil
}

// Delivery reports what Deliver did with a payload.
type Delivery struct {
	// Replayed counts saved messages pushed ahead of the payload.
	Replayed int
	// Pushed is false when the payload was saved instead.
	Pushed bool
	// Err is the push or replay failure that made the payload wait.
	Err error
}

// Deliver pushes payload to clientID once every older saved message has been
// pushed. When that is not possible the payload is saved behind them and is
// replayed on the next drain. The returned error is set only when the
// payload could be neither pushed nor saved.
func (m *Mailbox) Deliver(ctx context.Context, clientID domain.ClientID, payload []byte, push DeliverFunc) (Delivery, error) {
	unlock := m.locks.Lock(string(clientID))
	defer unlock()

	var d Delivery
	d.Replayed, d.Err = m.drain(ctx, clientID, push)
	if d.Err == nil {
		if d.Err = push(ctx, payload); d.Err == nil {
			d.Pushed = true
			return d, nil
		}
	}
	if err := m.append(ctx, clientID, payload); err != nil {
		return d, err
	}
	return d, nil
}

func (m *Mailbox) Purge(ctx context.Context, clientID domain.ClientID) error {
	unlock := m.locks.Lock(string(clientID))
	defer unlock()

	if err := m.repo.Purge(ctx, clientID); err != nil {
		return fmt.Errorf("purge %s: %w", clientID, err)
	}
	m.ackedMu.Lock()
	delete(m.acked, clientID)
	m.ackedMu.Unlock()
	return nil
}

func (m *Mailbox) Count(ctx context.Context, clientID domain.ClientID) (int, error) {
	return m.repo.Count(ctx, clientID)
}

func (m *Mailbox) isAcked(clientID domain.ClientID, id domain.MessageID) bool {
	m.ackedMu.Lock()
	defer m.ackedMu.Unlock()
	_, ok := m.acked[clientID][id]
	return ok
}

func (m *Mailbox) ack(clientID domain.ClientID, id domain.MessageID) {
	m.ackedMu.Lock()
	defer m.ackedMu.Unlock()
	if m.acked[clientID] == nil {
		m.acked[clientID] = make(map[domain.MessageID]struct{})
	}
	m.acked[clientID][id] = struct{}{}
}

func (m *Mailbox) forget(clientID domain.ClientID, id domain.MessageID) {
	m.ackedMu.Lock()
	defer m.ackedMu.Unlock()
	delete(m.acked[clientID], id)
	if len(m.acked[clientID]) == 0 {
		delete(m.acked, clientID)
	}
}
