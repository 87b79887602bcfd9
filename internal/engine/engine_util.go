package engine

import (
	"time"

	"github.com/pointdeck/pointdeck/internal/deck"
)

func NewState(id, name, moderatorID, moderatorName string, d deck.Deck, keepTopic bool, now time.Time) State {
	s := State{
		ID:           id,
		Name:         name,
		ModeratorID:  moderatorID,
		CreatedAt:    now,
		Deck:         d,
		KeepTopic:    keepTopic,
		Participants: map[string]*Participant{},
		Votes:        map[string]Vote{},
	}
	s.Participants[moderatorID] = &Participant{
		ID:          moderatorID,
		Name:        moderatorName,
		IsModerator: true,
		IsConnected: true,
	}
	return s
}

// VoteValues flattens the current round's votes to raw values keyed by
// participant id.
func VoteValues(s State) map[string]string {
	out := make(map[string]string, len(s.Votes))
	for id, v := range s.Votes {
		out[id] = v.Value
	}
	return out
}

func DerivePhase(s State) Phase {
	switch {
	case s.Revealed:
		return PhaseRevealed
	case len(s.Votes) > 0:
		return PhaseVotingOpen
	default:
		return PhasePreVote
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
