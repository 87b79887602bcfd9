package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/internal/deck"
	"github.com/pointdeck/pointdeck/internal/engine"
	"github.com/pointdeck/pointdeck/internal/room"
)

// ErrCodeSpaceExhausted means code generation kept colliding with live
// sessions. Callers see it instead of a silently reused code.
var ErrCodeSpaceExhausted = errors.New("could not generate a unique room code")

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const codeLength = 6

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	Name          string
	ModeratorID   string
	ModeratorName string
	Deck          deck.Deck
	Reply         chan CreateResult
}

type CreateResult struct {
	RoomID string
	Room   *room.Room
	Err    error
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

type SessionExists struct {
	Code  string
	Reply chan bool
}

type SessionIDs struct {
	Reply chan []string
}

type RemoveRoom struct {
	Code string
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetRoom) isHubMsg()       {}
func (SessionExists) isHubMsg() {}
func (SessionIDs) isHubMsg()    {}
func (RemoveRoom) isHubMsg()    {}
func (ShutdownHub) isHubMsg()   {}

type Options struct {
	CodeAttempts  int
	Retention     time.Duration
	SweepInterval time.Duration
	KeepTopic     bool
}

func (o Options) withDefaults() Options {
	if o.CodeAttempts <= 0 {
		o.CodeAttempts = 10
	}
	if o.Retention <= 0 {
		o.Retention = 2 * time.Hour
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 10 * time.Minute
	}
	return o
}

// Hub owns the room table: one goroutine, one map, no other writer. Room
// codes are unique for the lifetime of their session; aged sessions with no
// live connection are swept in the background.
type Hub struct {
	inbox   chan HubMsg
	rooms   map[string]*room.Room
	opts    Options
	clock   clockwork.Clock
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	genCode func() (string, error)
}

func NewHub(parent context.Context, opts Options, clock clockwork.Clock, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		rooms:   make(map[string]*room.Room),
		opts:    opts.withDefaults(),
		clock:   clock,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		genCode: generateCode,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	ticker := h.clock.NewTicker(h.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-ticker.Chan():
			h.sweep()

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				msg.Reply <- h.createSession(msg)

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // may be nil

			case SessionExists:
				_, ok := h.rooms[msg.Code]
				msg.Reply <- ok

			case SessionIDs:
				ids := make([]string, 0, len(h.rooms))
				for code := range h.rooms {
					ids = append(ids, code)
				}
				msg.Reply <- ids

			case RemoveRoom:
				if rm, ok := h.rooms[msg.Code]; ok {
					rm.Inbox() <- room.Shutdown{}
					delete(h.rooms, msg.Code)
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) createSession(msg CreateSession) CreateResult {
	code, err := h.uniqueCode()
	if err != nil {
		return CreateResult{Err: err}
	}

	initial := engine.NewState(code, msg.Name, msg.ModeratorID, msg.ModeratorName,
		msg.Deck, h.opts.KeepTopic, h.clock.Now())
	rm := room.NewRoom(h.ctx, initial, h.clock, h.log)
	h.rooms[code] = rm

	h.log.Info("session created", zap.String("room", code), zap.String("name", msg.Name))
	return CreateResult{RoomID: code, Room: rm}
}

// uniqueCode retries generation against the live code set. The attempt bound
// turns code-space exhaustion into an error instead of a hang.
func (h *Hub) uniqueCode() (string, error) {
	for attempt := 0; attempt < h.opts.CodeAttempts; attempt++ {
		code, err := h.genCode()
		if err != nil {
			return "", err
		}
		if _, taken := h.rooms[code]; !taken {
			return code, nil
		}
		h.log.Warn("room code collision, regenerating", zap.String("code", code))
	}
	return "", ErrCodeSpaceExhausted
}

func generateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code), nil
}

// sweep removes sessions past the retention window that have no live
// connection. A single connected participant exempts a room regardless of
// age.
func (h *Hub) sweep() {
	now := h.clock.Now()
	for code, rm := range h.rooms {
		reply := make(chan room.View, 1)
		rm.Inbox() <- room.GetView{Reply: reply}

		var view room.View
		select {
		case view = <-reply:
		case <-time.After(time.Second):
			continue // room busy; revisit next sweep
		}

		if view.NumClients > 0 {
			continue
		}
		if now.Sub(view.State.CreatedAt) < h.opts.Retention {
			continue
		}
		rm.Inbox() <- room.Shutdown{}
		delete(h.rooms, code)
		h.log.Info("swept idle session", zap.String("room", code),
			zap.Duration("age", now.Sub(view.State.CreatedAt)))
	}
}

func (h *Hub) shutdown() {
	for code, rm := range h.rooms {
		rm.Inbox() <- room.Shutdown{}
		delete(h.rooms, code)
	}
	h.cancel()
}
