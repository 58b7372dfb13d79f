package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestRelay_Scenarios(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(0)
	u1 := domain.NewClientID("r1", "u1")
	u2 := domain.NewClientID("r1", "u2")

	// u1 joins an empty room, then connects.
	f.seed("r1", "u1")
	room, err := f.service.Snapshot(ctx, "r1")
	req.NoError(err)
	req.Equal(1, room.Occupancy())
	req.NoError(f.relay.Connect(ctx, "r1", "u1"))
	room, err = f.service.Snapshot(ctx, "r1")
	req.NoError(err)
	connected, _ := room.IsConnected("u1")
	req.True(connected)
	req.Empty(f.gateway.received(u1))

	// u1 asks for a fresh token while alone.
	req.NoError(f.relay.HandleMessage(ctx, "r1", "u1", []byte(`{"type":"tokenRequest"}`)))
	got := f.gateway.received(u1)
	req.Len(got, 1)
	req.JSONEq(`{"type":"tokenResponse","token":"token-r1/u1"}`, got[0])
	after, err := f.service.Snapshot(ctx, "r1")
	req.NoError(err)
	req.Equal(room, after)

	// u2 joins but is not connected yet; the offer waits for it.
	req.NoError(f.service.Update(ctx, "r1", func(room *domain.Room) (bool, error) {
		return true, room.AddUser("u2")
	}))
	offer := `{"type":"offer","sdp":"v=0"}`
	req.NoError(f.relay.HandleMessage(ctx, "r1", "u1", []byte(offer)))
	req.Equal([]string{offer}, f.pending("r1", "u2"))
	req.Empty(f.gateway.received(u2))

	req.NoError(f.relay.Connect(ctx, "r1", "u2"))
	req.Equal([]string{offer}, f.gateway.received(u2))
	req.Empty(f.pending("r1", "u2"))

	// u1 says bye: removed, u2 compacted into the first slot, nothing routed.
	req.NoError(f.relay.HandleMessage(ctx, "r1", "u1", []byte(`{"type":"bye"}`)))
	room, err = f.service.Snapshot(ctx, "r1")
	req.NoError(err)
	req.Equal(1, room.Occupancy())
	req.Equal(domain.UserID("u2"), room.SlotA)
	req.True(room.ConnectedA)
	req.Equal([]string{offer}, f.gateway.received(u2))
}

func TestRelay_DisconnectSendsByeToPeer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(0)
	f.seed("r1", "u1", "u2")
	req.NoError(f.relay.Connect(ctx, "r1", "u1"))
	req.NoError(f.relay.Connect(ctx, "r1", "u2"))

	req.NoError(f.relay.Disconnect(ctx, "r1", "u1"))

	room, err := f.service.Snapshot(ctx, "r1")
	req.NoError(err)
	req.False(room.HasUser("u1"))
	req.Equal([]string{`{"type":"bye"}`}, f.gateway.received(domain.NewClientID("r1", "u2")))
}

func TestRelay_DisconnectQueuesByeForOfflinePeer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(0)
	f.seed("r1", "u1", "u2")
	req.NoError(f.relay.Connect(ctx, "r1", "u1"))

	req.NoError(f.relay.Disconnect(ctx, "r1", "u1"))
	req.Equal([]string{`{"type":"bye"}`}, f.pending("r1", "u2"))
}

func TestRelay_DisconnectLastUserDeletesRoomAndPurges(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(0)
	f.seed("r1", "u1")
	req.NoError(f.mailbox.Append(ctx, domain.NewClientID("r1", "u1"), []byte(`{"type":"candidate"}`)))

	req.NoError(f.relay.Disconnect(ctx, "r1", "u1"))

	_, err := f.service.Snapshot(ctx, "r1")
	req.ErrorIs(err, domain.ErrUnknownRoom)
	req.Empty(f.pending("r1", "u1"))
}

func TestRelay_LifecycleNoticesTolerateStrangers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(0)
	f.seed("r1", "u1")

	req.NoError(f.relay.Connect(ctx, "missing", "u1"))
	req.NoError(f.relay.Connect(ctx, "r1", "ghost"))
	req.NoError(f.relay.Disconnect(ctx, "missing", "u1"))
	req.NoError(f.relay.Disconnect(ctx, "r1", "ghost"))

	// A duplicate disconnect is a no-op.
	req.NoError(f.relay.Disconnect(ctx, "r1", "u1"))
	req.NoError(f.relay.Disconnect(ctx, "r1", "u1"))
}

func TestRelay_HandleMessageErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(0)
	f.seed("r1", "u1", "u2")

	t.Run("malformed envelope leaves room untouched", func(t *testing.T) {
		req := require.New(t)
		before, err := f.service.Snapshot(ctx, "r1")
		req.NoError(err)
		req.ErrorIs(f.relay.HandleMessage(ctx, "r1", "u1", []byte(`{"type":`)), domain.ErrMalformedEnvelope)
		after, err := f.service.Snapshot(ctx, "r1")
		req.NoError(err)
		req.Equal(before, after)
		req.Empty(f.pending("r1", "u2"))
	})

	t.Run("unknown room", func(t *testing.T) {
		err := f.relay.HandleMessage(ctx, "nope", "u1", []byte(`{"type":"offer"}`))
		require.ErrorIs(t, err, domain.ErrUnknownRoom)
	})

	t.Run("token request from user not in room", func(t *testing.T) {
		err := f.relay.HandleMessage(ctx, "r1", "ghost", []byte(`{"type":"tokenRequest"}`))
		require.ErrorIs(t, err, domain.ErrInvalidUser)
		require.Empty(t, f.gateway.received(domain.NewClientID("r1", "ghost")))
	})
}

func TestRelay_DuplicateByeIsNoop(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(0)
	f.seed("r1", "u1", "u2")

	req.NoError(f.relay.HandleMessage(ctx, "r1", "u1", []byte(`{"type":"bye"}`)))
	req.NoError(f.relay.HandleMessage(ctx, "r1", "u1", []byte(`{"type":"bye"}`)))

	room, err := f.service.Snapshot(ctx, "r1")
	req.NoError(err)
	req.Equal("[u2-false]", room.String())
	req.Empty(f.pending("r1", "u2"))
}

func TestRelay_ByeAfterDisconnectIsNoop(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(0)
	f.seed("r1", "u1", "u2")
	req.NoError(f.relay.Connect(ctx, "r1", "u2"))

	req.NoError(f.relay.Disconnect(ctx, "r1", "u1"))
	req.NoError(f.relay.HandleMessage(ctx, "r1", "u1", []byte(`{"type":"bye"}`)))

	req.Equal([]string{`{"type":"bye"}`}, f.gateway.received(domain.NewClientID("r1", "u2")))
}

func TestRelay_MessageFromStrangerIsDropped(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(0)
	f.seed("r1", "u1", "u2")
	req.NoError(f.relay.Connect(ctx, "r1", "u1"))

	req.NoError(f.relay.HandleMessage(ctx, "r1", "ghost", []byte(`{"type":"candidate"}`)))

	req.Empty(f.gateway.received(domain.NewClientID("r1", "u1")))
	req.Empty(f.pending("r1", "u1"))
	req.Empty(f.pending("r1", "u2"))
	room, err := f.service.Snapshot(ctx, "r1")
	req.NoError(err)
	req.Equal("[u1-true u2-false]", room.String())
}

func TestRelay_MessagesDuringReplayKeepOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(0)
	f.seed("r1", "u1", "u2")
	req.NoError(f.relay.Connect(ctx, "r1", "u1"))
	u2 := domain.NewClientID("r1", "u2")

	offer := `{"type":"offer"}`
	first := `{"type":"candidate","n":1}`
	second := `{"type":"candidate","n":2}`
	req.NoError(f.relay.HandleMessage(ctx, "r1", "u1", []byte(offer)))
	req.NoError(f.relay.HandleMessage(ctx, "r1", "u1", []byte(first)))

	// u1 trickles another candidate while u2's saved messages are replayed.
	sent := make(chan error, 1)
	var once sync.Once
	f.gateway.setOnPush(func(clientID domain.ClientID, payload string) {
		if clientID != u2 || payload != offer {
			return
		}
		once.Do(func() {
			go func() { sent <- f.relay.HandleMessage(ctx, "r1", "u1", []byte(second)) }()
		})
	})

	req.NoError(f.relay.Connect(ctx, "r1", "u2"))
	req.NoError(<-sent)

	req.Equal([]string{offer, first, second}, f.gateway.received(u2))
	req.Empty(f.pending("r1", "u2"))
}

func TestRelay_SingleOccupantDropsMessages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(0)
	f.seed("r1", "u1")
	req.NoError(f.relay.Connect(ctx, "r1", "u1"))

	req.NoError(f.relay.HandleMessage(ctx, "r1", "u1", []byte(`{"type":"candidate"}`)))
	req.Empty(f.gateway.received(domain.NewClientID("r1", "u1")))
	req.Empty(f.pending("r1", "u1"))
}

func TestRelay_UnknownTypesForwardedUnchanged(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(0)
	f.seed("r1", "u1", "u2")
	req.NoError(f.relay.Connect(ctx, "r1", "u2"))

	raw := `{"type":"mute","video":true}`
	req.NoError(f.relay.HandleMessage(ctx, "r1", "u1", []byte(raw)))
	req.Equal([]string{raw}, f.gateway.received(domain.NewClientID("r1", "u2")))
}

func TestRelay_Loopback(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(0)
	f.seed("r1", "me", "me")
	req.NoError(f.relay.Connect(ctx, "r1", "me"))
	me := domain.NewClientID("r1", "me")

	offer, err := json.Marshal(map[string]string{
		"type": "offer",
		"sdp":  "v=0\r\na=ice-options:google-ice\r\nm=audio\r\n",
	})
	req.NoError(err)
	req.NoError(f.relay.HandleMessage(ctx, "r1", "me", offer))

	candidate := `{"type":"candidate","candidate":"a=ice-options:google-ice\r\n"}`
	req.NoError(f.relay.HandleMessage(ctx, "r1", "me", []byte(candidate)))

	got := f.gateway.received(me)
	req.Len(got, 2)
	var answer map[string]string
	req.NoError(json.Unmarshal([]byte(got[0]), &answer))
	req.Equal("answer", answer["type"])
	req.Equal("v=0\r\nm=audio\r\n", answer["sdp"])
	req.Equal(candidate, got[1])
}

func TestRelay_PushFailureFallsBackToMailbox(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(0)
	f.seed("r1", "u1", "u2")
	req.NoError(f.relay.Connect(ctx, "r1", "u2"))
	u2 := domain.NewClientID("r1", "u2")

	f.gateway.fail(u2, true)
	msg := `{"type":"candidate","n":1}`
	req.NoError(f.relay.HandleMessage(ctx, "r1", "u1", []byte(msg)))
	req.Equal([]string{msg}, f.pending("r1", "u2"))

	// The next connect notice replays it.
	f.gateway.fail(u2, false)
	req.NoError(f.relay.Connect(ctx, "r1", "u2"))
	req.Equal([]string{msg}, f.gateway.received(u2))
	req.Empty(f.pending("r1", "u2"))
}

func TestRelay_FailedDrainKeepsMessages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(0)
	f.seed("r1", "u1", "u2")
	u2 := domain.NewClientID("r1", "u2")
	req.NoError(f.relay.HandleMessage(ctx, "r1", "u1", []byte(`{"type":"offer"}`)))

	f.gateway.fail(u2, true)
	req.NoError(f.relay.Connect(ctx, "r1", "u2"))
	req.Equal([]string{`{"type":"offer"}`}, f.pending("r1", "u2"))
}

func TestRelay_MailboxFullSurfacesError(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(1)
	f.seed("r1", "u1", "u2")

	req.NoError(f.relay.HandleMessage(ctx, "r1", "u1", []byte(`{"type":"offer"}`)))
	err := f.relay.HandleMessage(ctx, "r1", "u1", []byte(`{"type":"candidate"}`))
	req.ErrorIs(err, domain.ErrMailboxFull)
	req.Equal([]string{`{"type":"offer"}`}, f.pending("r1", "u2"))
}

func TestRelay_Join(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(0)

	res, err := f.relay.Join(ctx, "r1", JoinOptions{})
	req.NoError(err)
	req.Equal("token-"+domain.NewClientID("r1", res.User).String(), res.Token)
	req.Equal(DefaultTokenTimeout, f.relay.TokenTimeout())
}

func TestRelay_ConcurrentRoomsStayConsistent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		key := domain.RoomKey(fmt.Sprintf("room-%d", i))
		f.seed(key, "a", "b")
		for _, user := range []domain.UserID{"a", "b"} {
			wg.Add(1)
			go func(key domain.RoomKey, user domain.UserID) {
				defer wg.Done()
				_ = f.relay.Connect(ctx, key, user)
				for j := 0; j < 20; j++ {
					_ = f.relay.HandleMessage(ctx, key, user, []byte(`{"type":"candidate"}`))
				}
				_ = f.relay.Disconnect(ctx, key, user)
			}(key, user)
		}
	}
	wg.Wait()

	require.Zero(t, f.rooms.Len())
	require.Zero(t, f.service.locks.size())
}
