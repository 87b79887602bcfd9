package room

import (
	"errors"
	"sort"

	"github.com/pointdeck/pointdeck/internal/engine"
	"github.com/pointdeck/pointdeck/internal/stats"
	"github.com/pointdeck/pointdeck/pkg/protocol"
)

// snapshotMessage renders the authoritative session state for the wire.
// Vote values are withheld until the round is revealed; only presence leaks
// out before that.
func snapshotMessage(s engine.State) protocol.ServerMessage {
	view := protocol.SessionState{
		SessionID:    s.ID,
		SessionName:  s.Name,
		ModeratorID:  s.ModeratorID,
		CurrentTopic: s.Topic,
		IsRevealed:   s.Revealed,
		Deck:         s.Deck.Values,
		Participants: make([]protocol.Participant, 0, len(s.Participants)),
		Votes:        make(map[string]protocol.VoteView, len(s.Votes)),
	}

	for _, p := range s.Participants {
		view.Participants = append(view.Participants, protocol.Participant{
			ID:          p.ID,
			Name:        p.Name,
			IsModerator: p.IsModerator,
			IsConnected: p.IsConnected,
			IsObserver:  p.IsObserver,
		})
	}
	sort.Slice(view.Participants, func(i, j int) bool {
		return view.Participants[i].ID < view.Participants[j].ID
	})

	for id, v := range s.Votes {
		vv := protocol.VoteView{HasVoted: true}
		if s.Revealed {
			vv.Value = v.Value
		}
		view.Votes[id] = vv
	}

	if s.Revealed {
		st := stats.Compute(engine.VoteValues(s))
		view.Statistics = &st
	}

	for _, h := range s.History {
		view.History = append(view.History, protocol.HistoryEntry{
			Topic:      h.Topic,
			Votes:      h.Votes,
			Statistics: h.Statistics,
		})
	}

	return protocol.ServerMessage{Type: protocol.MsgSessionState, Session: &view}
}

// revealedMessage renders the votes-revealed broadcast with full values and
// the round's statistics.
func revealedMessage(s engine.State) protocol.ServerMessage {
	votes := engine.VoteValues(s)
	st := stats.Compute(votes)
	return protocol.ServerMessage{Type: protocol.MsgVotesRevealed, Votes: votes, Statistics: &st}
}

// errorMessage maps an engine rejection to the error frame the acting client
// receives.
func errorMessage(err error) protocol.ServerMessage {
	code := protocol.CodeInvalidState
	switch {
	case errors.Is(err, engine.ErrUnknownParticipant):
		code = protocol.CodeNotFound
	case errors.Is(err, engine.ErrNotModerator):
		code = protocol.CodeUnauthorized
	case errors.Is(err, engine.ErrUnsupportedCommand):
		code = protocol.CodeMalformed
	}
	return protocol.ServerMessage{
		Type:  protocol.MsgError,
		Error: &protocol.ErrorInfo{Code: code, Message: err.Error()},
	}
}
