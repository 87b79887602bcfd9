// Package client is the reconnecting counterpart to the server's wire
// protocol. It owns a single socket per session, replays the join handshake
// after every successful dial, and backs off exponentially between attempts
// so a flapping network cannot hammer the server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/pointdeck/pointdeck/pkg/protocol"
)

var ErrNotConnected = errors.New("not connected")
var ErrClosed = errors.New("client closed")

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Conn is the minimal socket surface the client needs; tests inject fakes.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

type DialFunc func(ctx context.Context, url string) (Conn, error)

type Options struct {
	URL      string // base socket URL, e.g. ws://host/ws
	RoomID   string
	UserID   string
	Name     string
	Observer bool

	BackoffFloor  time.Duration // default 250ms
	BackoffCap    time.Duration // default 15s
	BackoffFactor float64       // default 2

	Dial DialFunc // optional; defaults to a coder/websocket dial
}

func (o Options) withDefaults() Options {
	if o.BackoffFloor <= 0 {
		o.BackoffFloor = 250 * time.Millisecond
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 15 * time.Second
	}
	if o.BackoffFactor <= 1 {
		o.BackoffFactor = 2
	}
	if o.Dial == nil {
		o.Dial = dialWebsocket
	}
	return o
}

// Client is an explicit connection state machine. Sends while disconnected
// are rejected, never queued; callers re-derive state from the next
// session-state snapshot instead of trusting anything sent into an outage.
type Client struct {
	opts Options

	mu       sync.Mutex
	status   Status
	conn     Conn
	delay    time.Duration
	attempts int
	closed   bool

	kick chan struct{} // manual reconnect skips the backoff wait
	done chan struct{}

	onMessage func(protocol.ServerMessage)
	onStatus  func(Status, int)
}

func New(opts Options) *Client {
	return &Client{
		opts:   opts.withDefaults(),
		status: StatusDisconnected,
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// OnMessage registers the frame callback. Register before Connect.
func (c *Client) OnMessage(fn func(protocol.ServerMessage)) { c.onMessage = fn }

// OnStatus registers the status callback; the attempt count feeds
// "reconnecting (attempt N)" style UI.
func (c *Client) OnStatus(fn func(Status, int)) { c.onStatus = fn }

// Connect starts the connection loop. It returns once the loop is running;
// delivery of frames happens on the loop's goroutine via OnMessage.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Send transmits one frame on the live socket.
func (c *Client) Send(ctx context.Context, msg protocol.ClientMessage) error {
	c.mu.Lock()
	conn := c.conn
	status := c.status
	c.mu.Unlock()

	if status != StatusConnected || conn == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, payload)
}

func (c *Client) SubmitVote(ctx context.Context, value string) error {
	return c.Send(ctx, protocol.ClientMessage{Type: protocol.MsgSubmitVote, Value: value})
}

func (c *Client) SetTopic(ctx context.Context, topic string) error {
	return c.Send(ctx, protocol.ClientMessage{Type: protocol.MsgSetTopic, Topic: topic})
}

func (c *Client) RevealVotes(ctx context.Context) error {
	return c.Send(ctx, protocol.ClientMessage{Type: protocol.MsgRevealVotes})
}

func (c *Client) NewRound(ctx context.Context) error {
	return c.Send(ctx, protocol.ClientMessage{Type: protocol.MsgNewRound})
}

// Reconnect resets backoff to its floor and retries immediately. A live
// connection is torn down first so the replayed join lands on a fresh
// socket.
func (c *Client) Reconnect() {
	c.mu.Lock()
	c.delay = 0
	c.attempts = 0
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Close tears the client down permanently; no further reconnects happen.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) run(ctx context.Context) {
	for {
		if c.isDone(ctx) {
			return
		}
		c.setStatus(StatusConnecting)

		conn, err := c.opts.Dial(ctx, c.socketURL())
		if err == nil {
			err = c.joinAndRead(ctx, conn)
			_ = conn.Close()
		}

		if c.isDone(ctx) {
			c.setStatus(StatusDisconnected)
			return
		}
		if !c.waitBackoff(ctx) {
			return
		}
	}
}

// joinAndRead replays the join handshake, then pumps frames until the socket
// dies. A successful open zeroes the backoff state.
func (c *Client) joinAndRead(ctx context.Context, conn Conn) error {
	join, err := json.Marshal(protocol.ClientMessage{
		Type:            protocol.MsgJoinSession,
		ParticipantName: c.opts.Name,
		Observer:        c.opts.Observer,
	})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, join); err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.status = StatusConnected
	c.delay = 0
	c.attempts = 0
	c.mu.Unlock()
	c.notify(StatusConnected, 0)

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			return err
		}
		var msg protocol.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

// waitBackoff sleeps the current delay, then grows it toward the cap. Manual
// Reconnect skips the sleep. Returns false when the client is done.
func (c *Client) waitBackoff(ctx context.Context) bool {
	c.mu.Lock()
	if c.delay < c.opts.BackoffFloor {
		c.delay = c.opts.BackoffFloor
	}
	wait := c.delay
	c.delay = time.Duration(float64(c.delay) * c.opts.BackoffFactor)
	if c.delay > c.opts.BackoffCap {
		c.delay = c.opts.BackoffCap
	}
	c.attempts++
	attempts := c.attempts
	c.mu.Unlock()

	c.setStatus(StatusDisconnected)
	c.notify(StatusDisconnected, attempts)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.kick:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Client) isDone(ctx context.Context) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	return ctx.Err() != nil
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Client) notify(s Status, attempts int) {
	if c.onStatus != nil {
		c.onStatus(s, attempts)
	}
}

func (c *Client) socketURL() string {
	q := url.Values{}
	q.Set("room", c.opts.RoomID)
	q.Set("user", c.opts.UserID)
	return c.opts.URL + "?" + q.Encode()
}

type wsConn struct {
	conn *websocket.Conn
}

func dialWebsocket(ctx context.Context, u string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.conn.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "bye")
}
