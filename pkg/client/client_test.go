package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointdeck/pointdeck/pkg/protocol"
)

type fakeConn struct {
	reads  chan []byte
	writes chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan []byte, 8),
		writes: make(chan []byte, 8),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.reads:
		return data, nil
	case <-f.closed:
		return nil, errors.New("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Write(ctx context.Context, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("connection closed")
	default:
	}
	select {
	case f.writes <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) expectWrite(t *testing.T) protocol.ClientMessage {
	t.Helper()
	select {
	case data := <-f.writes:
		var msg protocol.ClientMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a write")
		return protocol.ClientMessage{} // unreachable
	}
}

func fastOptions(dial DialFunc) Options {
	return Options{
		URL:           "ws://example.test/ws",
		RoomID:        "ABC123",
		UserID:        "bob",
		Name:          "Bob",
		BackoffFloor:  5 * time.Millisecond,
		BackoffCap:    20 * time.Millisecond,
		BackoffFactor: 2,
		Dial:          dial,
	}
}

func TestClient_SendWhileDisconnectedIsRejected(t *testing.T) {
	c := New(fastOptions(func(ctx context.Context, url string) (Conn, error) {
		return nil, errors.New("offline")
	}))
	defer c.Close()

	err := c.SubmitVote(context.Background(), "5")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_BackoffGrowsAndCaps(t *testing.T) {
	c := New(fastOptions(nil))
	c.opts.Dial = func(ctx context.Context, url string) (Conn, error) {
		return nil, errors.New("offline")
	}

	ctx := context.Background()
	var waits []time.Duration
	for i := 0; i < 4; i++ {
		c.mu.Lock()
		if c.delay < c.opts.BackoffFloor {
			c.delay = c.opts.BackoffFloor
		}
		waits = append(waits, c.delay)
		c.mu.Unlock()
		require.True(t, c.waitBackoff(ctx))
	}

	assert.Equal(t, []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		20 * time.Millisecond,
		20 * time.Millisecond, // capped
	}, waits)
	assert.Equal(t, 4, c.Attempts())
}

func TestClient_ReconnectResetsBackoff(t *testing.T) {
	c := New(fastOptions(func(ctx context.Context, url string) (Conn, error) {
		return nil, errors.New("offline")
	}))
	defer c.Close()

	require.True(t, c.waitBackoff(context.Background()))
	require.True(t, c.waitBackoff(context.Background()))
	require.Equal(t, 2, c.Attempts())

	c.Reconnect()
	assert.Equal(t, 0, c.Attempts())

	c.mu.Lock()
	assert.Equal(t, time.Duration(0), c.delay)
	c.mu.Unlock()
}

func TestClient_ReplaysJoinOnEveryDial(t *testing.T) {
	conns := make(chan *fakeConn, 4)
	dial := func(ctx context.Context, url string) (Conn, error) {
		fc := newFakeConn()
		conns <- fc
		return fc, nil
	}

	c := New(fastOptions(dial))
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	first := <-conns
	join := first.expectWrite(t)
	assert.Equal(t, protocol.MsgJoinSession, join.Type)
	assert.Equal(t, "Bob", join.ParticipantName)

	// Kill the first socket; the client must dial again and replay join.
	first.Close()

	var second *fakeConn
	select {
	case second = <-conns:
	case <-time.After(time.Second):
		t.Fatalf("client never redialed")
	}
	rejoin := second.expectWrite(t)
	assert.Equal(t, protocol.MsgJoinSession, rejoin.Type)
}

func TestClient_DeliversFramesAndStatus(t *testing.T) {
	fc := newFakeConn()
	dial := func(ctx context.Context, url string) (Conn, error) { return fc, nil }

	c := New(fastOptions(dial))
	defer c.Close()

	frames := make(chan protocol.ServerMessage, 4)
	c.OnMessage(func(msg protocol.ServerMessage) { frames <- msg })

	statuses := make(chan Status, 8)
	c.OnStatus(func(s Status, attempts int) { statuses <- s })

	require.NoError(t, c.Connect(context.Background()))
	_ = fc.expectWrite(t) // join

	payload, err := json.Marshal(protocol.ServerMessage{Type: protocol.MsgRoundStarted})
	require.NoError(t, err)
	fc.reads <- payload

	select {
	case msg := <-frames:
		assert.Equal(t, protocol.MsgRoundStarted, msg.Type)
	case <-time.After(time.Second):
		t.Fatalf("frame never delivered")
	}

	select {
	case s := <-statuses:
		assert.Equal(t, StatusConnected, s)
	case <-time.After(time.Second):
		t.Fatalf("status never delivered")
	}

	assert.Equal(t, StatusConnected, c.Status())

	// Connected means sends go through.
	require.NoError(t, c.SubmitVote(context.Background(), "5"))
	vote := fc.expectWrite(t)
	assert.Equal(t, protocol.MsgSubmitVote, vote.Type)
	assert.Equal(t, "5", vote.Value)
}

func TestClient_CloseStopsReconnecting(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	dial := func(ctx context.Context, url string) (Conn, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return nil, errors.New("offline")
	}

	c := New(fastOptions(dial))
	require.NoError(t, c.Connect(context.Background()))

	time.Sleep(30 * time.Millisecond)
	c.Close()
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	settled := dials
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	final := dials
	mu.Unlock()
	assert.Equal(t, settled, final)

	assert.ErrorIs(t, c.Connect(context.Background()), ErrClosed)
}
