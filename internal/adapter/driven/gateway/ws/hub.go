package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/rs/zerolog/log"
)

type TokenIssuer interface {
	Issue(clientID domain.ClientID, ttl time.Duration) (string, error)
}

// Hub tracks the open channel of every connected client.
// It implements port.DeliveryGateway.
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.ClientID]Client
	tokens  TokenIssuer
	closed  bool
}

func NewHub(tokens TokenIssuer) *Hub {
	return &Hub{
		clients: make(map[domain.ClientID]Client),
		tokens:  tokens,
	}
}

func (h *Hub) Push(ctx context.Context, clientID domain.ClientID, payload []byte) error {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrClientNotConnected, clientID)
	}
	return client.Send(payload)
}

func (h *Hub) IssueToken(ctx context.Context, clientID domain.ClientID, ttl time.Duration) (string, error) {
	return h.tokens.Issue(clientID, ttl)
}

// Register makes c the channel for its client id. A previous channel for the
// same id is closed.
func (h *Hub) Register(c Client) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return fmt.Errorf("hub stopped")
	}
	prev := h.clients[c.ID()]
	h.clients[c.ID()] = c
	h.mu.Unlock()

	if prev != nil && prev != c {
		if err := prev.Close(); err != nil {
			log.Error().Err(err).Str("client_id", c.ID().String()).Msg("Error closing replaced client")
		}
	}
	log.Info().Str("client_id", c.ID().String()).Msg("Client registered")
	return nil
}

// Unregister forgets c and reports whether it was still the registered
// channel for its id.
func (h *Hub) Unregister(c Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.ID()]; !ok || cur != c {
		return false
	}
	delete(h.clients, c.ID())
	log.Info().Str("client_id", c.ID().String()).Msg("Client unregistered")
	return true
}

func (h *Hub) Connected(clientID domain.ClientID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[clientID]
	return ok
}

func (h *Hub) Stop() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[domain.ClientID]Client)
	h.closed = true
	h.mu.Unlock()

	for id, client := range clients {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Str("client_id", id.String()).Msg("Error closing client connection")
		}
	}
}
