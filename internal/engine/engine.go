package engine

import (
	"errors"
	"time"

	"github.com/pointdeck/pointdeck/internal/deck"
	"github.com/pointdeck/pointdeck/internal/stats"
	"github.com/pointdeck/pointdeck/pkg/protocol"
)

var ErrUnknownParticipant = errors.New("unknown participant")
var ErrNotModerator = errors.New("moderator only")
var ErrAlreadyRevealed = errors.New("votes already revealed")
var ErrObserverVote = errors.New("observers cannot vote")
var ErrUnknownCard = errors.New("value not in deck")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhasePreVote    Phase = "pre_vote"
	PhaseVotingOpen Phase = "voting_open"
	PhaseRevealed   Phase = "revealed"
)

type Participant struct {
	ID          string
	Name        string
	IsModerator bool
	IsConnected bool
	IsObserver  bool
}

type Vote struct {
	Value       string
	SubmittedAt time.Time
}

type RoundHistoryEntry struct {
	Topic      string
	Votes      map[string]string
	Statistics protocol.Statistics
	RevealedAt time.Time
}

// State is one session. The room actor is its only writer; Apply returns
// before touching state whenever a command is rejected, so a failed command
// is observationally a no-op.
type State struct {
	ID           string
	Name         string
	ModeratorID  string
	CreatedAt    time.Time
	Topic        string
	Revealed     bool
	Deck         deck.Deck
	KeepTopic    bool // topic carries across new-round when set
	Participants map[string]*Participant
	Votes        map[string]Vote
	History      []RoundHistoryEntry
}

type CommandType string

const (
	CmdJoin       CommandType = "Join"
	CmdDisconnect CommandType = "Disconnect"
	CmdSubmitVote CommandType = "SubmitVote"
	CmdSetTopic   CommandType = "SetTopic"
	CmdReveal     CommandType = "Reveal"
	CmdNewRound   CommandType = "NewRound"
)

type Command struct {
	Type     CommandType
	UserID   string
	Name     string
	Observer bool
	Value    string
	Topic    string
	At       time.Time
}

type EventType string

const (
	EvtParticipantJoined EventType = "ParticipantJoined"
	EvtParticipantLeft   EventType = "ParticipantLeft"
	EvtVoteSubmitted     EventType = "VoteSubmitted"
	EvtTopicChanged      EventType = "TopicChanged"
	EvtVotesRevealed     EventType = "VotesRevealed"
	EvtRoundStarted      EventType = "RoundStarted"
)

type Event struct {
	Type   EventType
	UserID string
	Topic  string
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	newState := s

	switch cmd.Type {
	case CmdJoin:
		if p, ok := s.Participants[cmd.UserID]; ok {
			// Rejoin with a known id flips the connection flag; the
			// participant record and any vote survive untouched.
			p.IsConnected = true
			if cmd.Name != "" {
				p.Name = cmd.Name
			}
		} else {
			newState.Participants[cmd.UserID] = &Participant{
				ID:          cmd.UserID,
				Name:        cmd.Name,
				IsModerator: cmd.UserID == s.ModeratorID,
				IsConnected: true,
				IsObserver:  cmd.Observer,
			}
		}
		return []Event{{Type: EvtParticipantJoined, UserID: cmd.UserID}}, newState, nil

	case CmdDisconnect:
		p, ok := s.Participants[cmd.UserID]
		if !ok {
			return nil, s, ErrUnknownParticipant
		}
		// Connection state only: the vote and moderator flag stay so a
		// transient drop is lossless.
		p.IsConnected = false
		return []Event{{Type: EvtParticipantLeft, UserID: cmd.UserID}}, newState, nil

	case CmdSubmitVote:
		p, ok := s.Participants[cmd.UserID]
		if !ok {
			return nil, s, ErrUnknownParticipant
		}
		if p.IsObserver {
			return nil, s, ErrObserverVote
		}
		if s.Revealed {
			return nil, s, ErrAlreadyRevealed
		}
		if !s.Deck.Contains(cmd.Value) {
			return nil, s, ErrUnknownCard
		}
		// Last write wins until reveal.
		newState.Votes[cmd.UserID] = Vote{Value: cmd.Value, SubmittedAt: cmd.At}
		return []Event{{Type: EvtVoteSubmitted, UserID: cmd.UserID}}, newState, nil

	case CmdSetTopic:
		if err := requireModerator(s, cmd.UserID); err != nil {
			return nil, s, err
		}
		newState.Topic = cmd.Topic
		return []Event{{Type: EvtTopicChanged, Topic: cmd.Topic}}, newState, nil

	case CmdReveal:
		if err := requireModerator(s, cmd.UserID); err != nil {
			return nil, s, err
		}
		if s.Revealed {
			return nil, s, ErrAlreadyRevealed
		}
		newState.Revealed = true
		snapshot := VoteValues(s)
		newState.History = append(newState.History, RoundHistoryEntry{
			Topic:      s.Topic,
			Votes:      snapshot,
			Statistics: stats.Compute(snapshot),
			RevealedAt: cmd.At,
		})
		return []Event{{Type: EvtVotesRevealed}}, newState, nil

	case CmdNewRound:
		if err := requireModerator(s, cmd.UserID); err != nil {
			return nil, s, err
		}
		newState.Revealed = false
		newState.Votes = make(map[string]Vote)
		if !s.KeepTopic {
			newState.Topic = ""
		}
		return []Event{{Type: EvtRoundStarted}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func requireModerator(s State, userID string) error {
	p, ok := s.Participants[userID]
	if !ok {
		return ErrUnknownParticipant
	}
	if !p.IsModerator {
		return ErrNotModerator
	}
	return nil
}
