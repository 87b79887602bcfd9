package room

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/internal/engine"
	"github.com/pointdeck/pointdeck/pkg/protocol"
)

type Msg interface{ isRoomMsg() }

// Join admits a connection for a participant: the engine upserts the
// participant, the joiner gets the authoritative snapshot on its outbox, and
// everyone else hears participant-joined.
type Join struct {
	UserID   string
	Name     string
	Observer bool
	Outbox   chan protocol.ServerMessage
}

func (Join) isRoomMsg() {}

// Leave carries the outbox it was admitted with so a stale close arriving
// after a reconnect cannot knock the fresh connection offline.
type Leave struct {
	UserID string
	Outbox chan protocol.ServerMessage
}

func (Leave) isRoomMsg() {}

type FromClient struct {
	UserID string
	Cmd    engine.Command
}

func (FromClient) isRoomMsg() {}

type GetView struct {
	Reply chan View
}

func (GetView) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// View reflects room internals without data races; tests and the hub sweep
// read it through the inbox like any other message.
type View struct {
	NumClients int
	State      engine.State
}

// Room is the single writer for one session. All mutations and the
// broadcasts they produce flow through one goroutine, so every client
// observes the same total order of frames.
type Room struct {
	inbox   chan Msg
	state   engine.State
	clients map[string]chan protocol.ServerMessage
	clock   clockwork.Clock
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRoom(parent context.Context, initial engine.State, clock clockwork.Clock, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		inbox:   make(chan Msg, 64),
		state:   initial,
		clients: make(map[string]chan protocol.ServerMessage),
		clock:   clock,
		log:     log.With(zap.String("room", initial.ID)),
		ctx:     ctx,
		cancel:  cancel,
	}

	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)

			case Leave:
				r.handleLeave(msg)

			case FromClient:
				r.handleCommand(msg)

			case GetView:
				msg.Reply <- View{NumClients: len(r.clients), State: r.state}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	cmd := engine.Command{
		Type:     engine.CmdJoin,
		UserID:   msg.UserID,
		Name:     msg.Name,
		Observer: msg.Observer,
		At:       r.clock.Now(),
	}
	_, newState, err := engine.Apply(r.state, cmd)
	if err != nil {
		// Not registered yet, so best effort only.
		select {
		case msg.Outbox <- errorMessage(err):
		default:
		}
		return
	}
	r.state = newState

	// A reconnect replaces any channel still registered for this id.
	if old, ok := r.clients[msg.UserID]; ok && old != msg.Outbox {
		close(old)
	}
	r.clients[msg.UserID] = msg.Outbox

	r.sendOrDrop(msg.UserID, snapshotMessage(r.state))
	if _, still := r.clients[msg.UserID]; !still {
		return
	}

	p := r.state.Participants[msg.UserID]
	r.broadcastExcept(msg.UserID, protocol.ServerMessage{
		Type: protocol.MsgParticipantJoined,
		Participant: &protocol.Participant{
			ID:          p.ID,
			Name:        p.Name,
			IsModerator: p.IsModerator,
			IsConnected: p.IsConnected,
			IsObserver:  p.IsObserver,
		},
	})
	r.log.Debug("participant joined", zap.String("user", msg.UserID))
}

func (r *Room) handleLeave(msg Leave) {
	current, ok := r.clients[msg.UserID]
	if !ok || current != msg.Outbox {
		// Stale close from a connection that was already replaced.
		return
	}
	delete(r.clients, msg.UserID)
	close(current)

	cmd := engine.Command{Type: engine.CmdDisconnect, UserID: msg.UserID, At: r.clock.Now()}
	_, newState, err := engine.Apply(r.state, cmd)
	if err != nil {
		return
	}
	r.state = newState
	r.broadcast(protocol.ServerMessage{Type: protocol.MsgParticipantLeft, UserID: msg.UserID})
	r.log.Debug("participant left", zap.String("user", msg.UserID))
}

func (r *Room) handleCommand(msg FromClient) {
	cmd := msg.Cmd
	cmd.UserID = msg.UserID
	cmd.At = r.clock.Now()

	events, newState, err := engine.Apply(r.state, cmd)
	if err != nil {
		// Rejections go only to the acting client; nobody else sees them.
		r.sendOrDrop(msg.UserID, errorMessage(err))
		r.log.Debug("command rejected",
			zap.String("user", msg.UserID),
			zap.String("cmd", string(cmd.Type)),
			zap.Error(err))
		return
	}
	r.state = newState

	for _, ev := range events {
		switch ev.Type {
		case engine.EvtVoteSubmitted:
			r.broadcast(protocol.ServerMessage{
				Type:     protocol.MsgVoteSubmitted,
				UserID:   ev.UserID,
				HasVoted: true,
			})
		case engine.EvtTopicChanged:
			topic := ev.Topic
			r.broadcast(protocol.ServerMessage{Type: protocol.MsgTopicChanged, Topic: &topic})
		case engine.EvtVotesRevealed:
			r.broadcast(revealedMessage(r.state))
		case engine.EvtRoundStarted:
			r.broadcast(protocol.ServerMessage{Type: protocol.MsgRoundStarted})
			r.broadcast(snapshotMessage(r.state))
		}
	}
}

// sendOrDrop delivers to one registered client, evicting it when its outbox
// is full so a stalled reader cannot block the room.
func (r *Room) sendOrDrop(userID string, msg protocol.ServerMessage) {
	ch, ok := r.clients[userID]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		close(ch)
		delete(r.clients, userID)
		cmd := engine.Command{Type: engine.CmdDisconnect, UserID: userID, At: r.clock.Now()}
		if _, newState, err := engine.Apply(r.state, cmd); err == nil {
			r.state = newState
			r.broadcast(protocol.ServerMessage{Type: protocol.MsgParticipantLeft, UserID: userID})
		}
		r.log.Warn("dropped slow client", zap.String("user", userID))
	}
}

func (r *Room) broadcast(msg protocol.ServerMessage) {
	r.broadcastExcept("", msg)
}

func (r *Room) broadcastExcept(skipUserID string, msg protocol.ServerMessage) {
	var dropped []string
	for id, ch := range r.clients {
		if id == skipUserID {
			continue
		}
		select {
		case ch <- msg:
		default:
			// Slow consumer. Drop the connection rather than stall the room.
			close(ch)
			delete(r.clients, id)
			dropped = append(dropped, id)
		}
	}

	for _, id := range dropped {
		cmd := engine.Command{Type: engine.CmdDisconnect, UserID: id, At: r.clock.Now()}
		if _, newState, err := engine.Apply(r.state, cmd); err == nil {
			r.state = newState
			r.broadcast(protocol.ServerMessage{Type: protocol.MsgParticipantLeft, UserID: id})
		}
		r.log.Warn("dropped slow client", zap.String("user", id))
	}
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
}
