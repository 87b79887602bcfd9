package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/internal/engine"
	"github.com/pointdeck/pointdeck/internal/hub"
	"github.com/pointdeck/pointdeck/internal/room"
	"github.com/pointdeck/pointdeck/pkg/protocol"
)

const writeTimeout = 3 * time.Second

type Options struct {
	MaxFrameBytes  int64
	AllowedOrigins []string
}

// Handler admits one socket per participant per room. Room and user ids
// travel as query parameters, not as a first frame, so a connection against
// a dead room is refused before the upgrade ever happens.
func Handler(h *hub.Hub, opts Options, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("room")
		userID := r.URL.Query().Get("user")
		if roomID == "" || userID == "" {
			http.Error(w, "missing room or user", http.StatusBadRequest)
			return
		}

		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.GetRoom{Code: roomID, Reply: reply}
		rm := <-reply
		if rm == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.AllowedOrigins,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		if opts.MaxFrameBytes > 0 {
			// Slack above the frame cap so an oversized frame can still be
			// read once and answered with a capacity error before the close.
			conn.SetReadLimit(opts.MaxFrameBytes + 1024)
		}

		log := log.With(zap.String("room", roomID), zap.String("user", userID))

		send := func(msg protocol.ServerMessage) {
			payload, _ := json.Marshal(msg)
			ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
			_ = conn.Write(ctx, websocket.MessageText, payload)
			cancel()
		}

		rejectOversized := func(n int) bool {
			if opts.MaxFrameBytes <= 0 || int64(n) <= opts.MaxFrameBytes {
				return false
			}
			send(protocol.ServerMessage{
				Type:  protocol.MsgError,
				Error: &protocol.ErrorInfo{Code: protocol.CodeCapacity, Message: "frame too large"},
			})
			conn.Close(websocket.StatusMessageTooBig, "frame too large")
			return true
		}

		send(protocol.ServerMessage{Type: protocol.MsgConnected, UserID: userID, RoomID: roomID})

		// Admission completes when the client sends join-session; a
		// reconnecting client replays the same frame.
		joinMsg, ok := awaitJoin(r.Context(), conn, send, rejectOversized)
		if !ok {
			return
		}

		out := make(chan protocol.ServerMessage, 16)
		rm.Inbox() <- room.Join{
			UserID:   userID,
			Name:     joinMsg.ParticipantName,
			Observer: joinMsg.Observer,
			Outbox:   out,
		}
		defer func() { rm.Inbox() <- room.Leave{UserID: userID, Outbox: out} }()

		// Writer: drains the room's outbox; when the room closes it (drop,
		// shutdown, replaced by a reconnect) the socket goes down with it.
		go func() {
			for msg := range out {
				send(msg)
			}
			conn.Close(websocket.StatusGoingAway, "session closed")
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("socket read ended", zap.Error(err))
				}
				return
			}
			if rejectOversized(len(data)) {
				return
			}

			var cm protocol.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				// Malformed frames are dropped; the connection survives.
				send(protocol.ServerMessage{
					Type:  protocol.MsgError,
					Error: &protocol.ErrorInfo{Code: protocol.CodeMalformed, Message: "bad json"},
				})
				continue
			}

			if cm.Type == protocol.MsgJoinSession {
				rm.Inbox() <- room.Join{
					UserID:   userID,
					Name:     cm.ParticipantName,
					Observer: cm.Observer,
					Outbox:   out,
				}
				continue
			}

			cmd, ok := toCommand(cm)
			if !ok {
				send(protocol.ServerMessage{
					Type:  protocol.MsgError,
					Error: &protocol.ErrorInfo{Code: protocol.CodeMalformed, Message: "unknown type"},
				})
				continue
			}

			rm.Inbox() <- room.FromClient{UserID: userID, Cmd: cmd}
		}
	}
}

// awaitJoin reads frames until the join-session handshake arrives. Anything
// else first is answered with an error and skipped.
func awaitJoin(ctx context.Context, conn *websocket.Conn, send func(protocol.ServerMessage), rejectOversized func(int) bool) (protocol.ClientMessage, bool) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return protocol.ClientMessage{}, false
		}
		if rejectOversized(len(data)) {
			return protocol.ClientMessage{}, false
		}

		var cm protocol.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			send(protocol.ServerMessage{
				Type:  protocol.MsgError,
				Error: &protocol.ErrorInfo{Code: protocol.CodeMalformed, Message: "bad json"},
			})
			continue
		}
		if cm.Type != protocol.MsgJoinSession {
			send(protocol.ServerMessage{
				Type:  protocol.MsgError,
				Error: &protocol.ErrorInfo{Code: protocol.CodeInvalidState, Message: "join-session required first"},
			})
			continue
		}
		return cm, true
	}
}

func toCommand(m protocol.ClientMessage) (engine.Command, bool) {
	switch m.Type {
	case protocol.MsgSubmitVote:
		return engine.Command{Type: engine.CmdSubmitVote, Value: m.Value}, true
	case protocol.MsgSetTopic:
		return engine.Command{Type: engine.CmdSetTopic, Topic: m.Topic}, true
	case protocol.MsgRevealVotes:
		return engine.Command{Type: engine.CmdReveal}, true
	case protocol.MsgNewRound:
		return engine.Command{Type: engine.CmdNewRound}, true
	default:
		return engine.Command{}, false
	}
}
