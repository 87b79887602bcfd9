package hub

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/internal/deck"
	"github.com/pointdeck/pointdeck/internal/room"
	"github.com/pointdeck/pointdeck/pkg/protocol"
)

func newTestHub(t *testing.T, clock clockwork.Clock, opts Options) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, opts, clock, zap.NewNop())
}

func createSession(t *testing.T, h *Hub, name string) CreateResult {
	t.Helper()
	reply := make(chan CreateResult, 1)
	h.Inbox() <- CreateSession{
		Name:          name,
		ModeratorID:   "alice",
		ModeratorName: "Alice",
		Deck:          deck.Fibonacci,
		Reply:         reply,
	}
	select {
	case res := <-reply:
		require.NoError(t, res.Err)
		return res
	case <-time.After(time.Second):
		t.Fatalf("timed out creating session")
		return CreateResult{} // unreachable
	}
}

func sessionExists(t *testing.T, h *Hub, code string) bool {
	t.Helper()
	reply := make(chan bool, 1)
	h.Inbox() <- SessionExists{Code: code, Reply: reply}
	select {
	case ok := <-reply:
		return ok
	case <-time.After(time.Second):
		t.Fatalf("timed out checking session")
		return false // unreachable
	}
}

func TestHub_CreateThenGet_SameRoom(t *testing.T) {
	h := newTestHub(t, clockwork.NewRealClock(), Options{})

	res := createSession(t, h, "Sprint Planning")
	require.Len(t, res.RoomID, 6)

	reply := make(chan *room.Room, 1)
	h.Inbox() <- GetRoom{Code: res.RoomID, Reply: reply}
	assert.Same(t, res.Room, <-reply)

	assert.True(t, sessionExists(t, h, res.RoomID))
	assert.False(t, sessionExists(t, h, "NOPE99"))
}

func TestHub_SessionIDs(t *testing.T) {
	h := newTestHub(t, clockwork.NewRealClock(), Options{})

	a := createSession(t, h, "one")
	b := createSession(t, h, "two")

	reply := make(chan []string, 1)
	h.Inbox() <- SessionIDs{Reply: reply}
	ids := <-reply
	assert.ElementsMatch(t, []string{a.RoomID, b.RoomID}, ids)
}

func TestHub_RemoveRoom(t *testing.T) {
	h := newTestHub(t, clockwork.NewRealClock(), Options{})

	res := createSession(t, h, "doomed")
	h.Inbox() <- RemoveRoom{Code: res.RoomID}

	require.Eventually(t, func() bool {
		return !sessionExists(t, h, res.RoomID)
	}, time.Second, 10*time.Millisecond)
}

func TestHub_GetRoom_AbsentIsNil(t *testing.T) {
	h := newTestHub(t, clockwork.NewRealClock(), Options{})

	reply := make(chan *room.Room, 1)
	h.Inbox() <- GetRoom{Code: "ZZZZZZ", Reply: reply}
	assert.Nil(t, <-reply)
}

func TestHub_Sweep_DeletesAgedEmptySession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := newTestHub(t, clock, Options{Retention: time.Hour, SweepInterval: time.Minute})

	res := createSession(t, h, "stale")
	clock.Advance(2 * time.Hour)

	require.Eventually(t, func() bool {
		return !sessionExists(t, h, res.RoomID)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_Sweep_KeepsAgedSessionWithLiveConnection(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := newTestHub(t, clock, Options{Retention: time.Hour, SweepInterval: time.Minute})

	res := createSession(t, h, "active")

	out := make(chan protocol.ServerMessage, 16)
	res.Room.Inbox() <- room.Join{UserID: "alice", Name: "Alice", Outbox: out}
	select {
	case msg := <-out:
		require.Equal(t, protocol.MsgSessionState, msg.Type)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}

	clock.Advance(2 * time.Hour)

	// Give at least one sweep a chance to run, then confirm survival.
	time.Sleep(100 * time.Millisecond)
	assert.True(t, sessionExists(t, h, res.RoomID))
}

func TestHub_Sweep_KeepsYoungEmptySession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := newTestHub(t, clock, Options{Retention: time.Hour, SweepInterval: time.Minute})

	res := createSession(t, h, "fresh")
	clock.Advance(10 * time.Minute)

	time.Sleep(100 * time.Millisecond)
	assert.True(t, sessionExists(t, h, res.RoomID))
}

func TestHub_CreateSession_RetriesCollidingCodes(t *testing.T) {
	h := newTestHub(t, clockwork.NewRealClock(), Options{CodeAttempts: 5})
	codes := []string{"AAAAAA", "AAAAAA", "AAAAAA", "BBBBBB"}
	h.genCode = func() (string, error) {
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code, nil
	}

	first := createSession(t, h, "one")
	require.Equal(t, "AAAAAA", first.RoomID)

	second := createSession(t, h, "two")
	assert.Equal(t, "BBBBBB", second.RoomID)
	assert.True(t, sessionExists(t, h, "AAAAAA"))
	assert.True(t, sessionExists(t, h, "BBBBBB"))
}

func TestHub_CreateSession_ExhaustedCodeSpaceFails(t *testing.T) {
	h := newTestHub(t, clockwork.NewRealClock(), Options{CodeAttempts: 3})
	h.genCode = func() (string, error) { return "AAAAAA", nil }

	first := createSession(t, h, "one")
	require.Equal(t, "AAAAAA", first.RoomID)

	reply := make(chan CreateResult, 1)
	h.Inbox() <- CreateSession{
		Name:          "two",
		ModeratorID:   "bob",
		ModeratorName: "Bob",
		Deck:          deck.Fibonacci,
		Reply:         reply,
	}
	select {
	case res := <-reply:
		require.ErrorIs(t, res.Err, ErrCodeSpaceExhausted)
		assert.Nil(t, res.Room)
	case <-time.After(time.Second):
		t.Fatalf("timed out creating session")
	}
}

func TestGenerateCode_ShapeAndCharset(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, codeLength)
		for _, c := range code {
			assert.Contains(t, codeCharset, string(c))
		}
		seen[code] = struct{}{}
	}
	// 36^6 codes; 50 draws colliding would mean the generator is broken.
	assert.Greater(t, len(seen), 45)
}
