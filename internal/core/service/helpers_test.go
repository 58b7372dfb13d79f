package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Wyydra/duo/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/duo/internal/core/domain"
)

var errPushFailed = errors.New("push failed")

type fakeGateway struct {
	mu      sync.Mutex
	pushed  map[domain.ClientID][]string
	failing map[domain.ClientID]bool
	tokens  []domain.ClientID
	// onPush runs after every successful push, outside the gateway lock.
	onPush func(clientID domain.ClientID, payload string)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		pushed:  make(map[domain.ClientID][]string),
		failing: make(map[domain.ClientID]bool),
	}
}

func (g *fakeGateway) Push(ctx context.Context, clientID domain.ClientID, payload []byte) error {
	g.mu.Lock()
	if g.failing[clientID] {
		g.mu.Unlock()
		return errPushFailed
	}
	g.pushed[clientID] = append(g.pushed[clientID], string(payload))
	hook := g.onPush
	g.mu.Unlock()

	if hook != nil {
		hook(clientID, string(payload))
	}
	return nil
}

func (g *fakeGateway) setOnPush(hook func(clientID domain.ClientID, payload string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onPush = hook
}

func (g *fakeGateway) IssueToken(ctx context.Context, clientID domain.ClientID, ttl time.Duration) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = append(g.tokens, clientID)
	return "token-" + clientID.String(), nil
}

func (g *fakeGateway) fail(clientID domain.ClientID, failing bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failing[clientID] = failing
}

func (g *fakeGateway) received(clientID domain.ClientID) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.pushed[clientID]...)
}

type fixture struct {
	rooms    *memory.RoomRepository
	messages *memory.MessageRepository
	mailbox  *Mailbox
	service  *RoomService
	gateway  *fakeGateway
	relay    *Relay
}

func newFixture(mailboxLimit int) *fixture {
	f := &fixture{
		rooms:    memory.NewRoomRepository(),
		messages: memory.NewMessageRepository(),
		gateway:  newFakeGateway(),
	}
	f.mailbox = NewMailbox(f.messages, mailboxLimit)
	f.service = NewRoomService(f.rooms, f.mailbox, nil)
	f.relay = NewRelay(f.service, f.mailbox, f.gateway)
	return f
}

// seed stores a room directly, bypassing Join's generated user ids.
func (f *fixture) seed(key domain.RoomKey, users ...domain.UserID) {
	room := domain.NewRoom(key)
	for _, u := range users {
		if err := room.AddUser(u); err != nil {
			panic(err)
		}
	}
	if err := f.rooms.Save(context.Background(), room); err != nil {
		panic(err)
	}
}

func (f *fixture) pending(key domain.RoomKey, user domain.UserID) []string {
	msgs, err := f.messages.Pending(context.Background(), domain.NewClientID(key, user))
	if err != nil {
		panic(err)
	}
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, string(m.Payload))
	}
	return out
}
