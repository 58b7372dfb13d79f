package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	sendQueueSize = 64
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
)

var errSendQueueFull = errors.New("send queue full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Cross-origin access is governed by the CORS allow list, channel
	// access by the token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSClient struct {
	id   domain.ClientID
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newWSClient(id domain.ClientID, conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (c *WSClient) ID() domain.ClientID {
	return c.id
}

func (c *WSClient) Send(payload []byte) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errSendQueueFull
	}
}

func (c *WSClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *WSClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Error().Err(err).Str("client_id", c.id.String()).Msg("Error writing message")
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// ServeChannel opens the push channel for the client named by the token.
// Registration is the connect notice and closing the socket is the
// disconnect notice. Text frames are relayed as messages from that client.
func (h *Handler) ServeChannel(w http.ResponseWriter, r *http.Request) {
	clientID, err := h.Tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	roomKey, user, err := domain.ParseClientID(clientID.String())
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}
	client := newWSClient(clientID, conn)

	l := log.With().Str("client_id", clientID.String()).Logger()
	if err := h.Hub.Register(client); err != nil {
		l.Error().Err(err).Msg("Failed to register client")
		_ = client.Close()
		return
	}
	l.Info().Msg("New client connected")
	go client.writeLoop()

	// The disconnect notice must run even when the request context is done.
	ctx := context.WithoutCancel(r.Context())
	if err := h.Relay.Connect(ctx, roomKey, user); err != nil {
		l.Error().Err(err).Msg("Failed to handle connect notice")
	}

	defer func() {
		l.Info().Msg("Client disconnected")
		if h.Hub.Unregister(client) {
			if err := h.Relay.Disconnect(ctx, roomKey, user); err != nil {
				l.Error().Err(err).Msg("Failed to handle disconnect notice")
			}
		}
		_ = client.Close()
	}()

	conn.SetReadLimit(maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}
		if typ != websocket.TextMessage {
			continue
		}
		if err := h.Relay.HandleMessage(ctx, roomKey, user, payload); err != nil {
			l.Error().Err(err).Msg("Failed to handle message")
		}
	}
}
