// Package protocol defines the JSON frames exchanged over a session socket.
// Both the server and the reconnecting client build against these types; the
// package carries data only, no behavior.
package protocol

// Client -> Server frame kinds.
const (
	MsgJoinSession = "join-session"
	MsgSubmitVote  = "submit-vote"
	MsgSetTopic    = "set-topic"
	MsgRevealVotes = "reveal-votes"
	MsgNewRound    = "new-round"
)

// Server -> Client frame kinds.
const (
	MsgConnected         = "connected"
	MsgSessionState      = "session-state"
	MsgParticipantJoined = "participant-joined"
	MsgParticipantLeft   = "participant-left"
	MsgVoteSubmitted     = "vote-submitted"
	MsgTopicChanged      = "topic-changed"
	MsgVotesRevealed     = "votes-revealed"
	MsgRoundStarted      = "round-started"
	MsgError             = "error"
)

// Error codes carried in error frames.
const (
	CodeNotFound     = "not_found"
	CodeUnauthorized = "unauthorized"
	CodeInvalidState = "invalid_state"
	CodeMalformed    = "malformed"
	CodeCapacity     = "capacity"
)

type ClientMessage struct {
	Type            string `json:"type"`
	ParticipantName string `json:"participantName,omitempty"`
	Observer        bool   `json:"observer,omitempty"`
	Value           string `json:"value,omitempty"`
	Topic           string `json:"topic,omitempty"`
}

type ServerMessage struct {
	Type        string            `json:"type"`
	UserID      string            `json:"userId,omitempty"`
	RoomID      string            `json:"roomId,omitempty"`
	Participant *Participant      `json:"participant,omitempty"`
	HasVoted    bool              `json:"hasVoted,omitempty"`
	Topic       *string           `json:"topic,omitempty"`
	Votes       map[string]string `json:"votes,omitempty"`
	Statistics  *Statistics       `json:"statistics,omitempty"`
	Session     *SessionState     `json:"session,omitempty"`
	Error       *ErrorInfo        `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Participant struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsModerator bool   `json:"isModerator"`
	IsConnected bool   `json:"isConnected"`
	IsObserver  bool   `json:"isObserver,omitempty"`
}

// VoteView is a participant's vote as seen on the wire: presence is always
// visible, the value only after reveal.
type VoteView struct {
	HasVoted bool   `json:"hasVoted"`
	Value    string `json:"value,omitempty"`
}

// Statistics aggregates one round of revealed votes. Numeric fields are nil
// when no vote parses as a number; Mode is nil only with zero votes.
type Statistics struct {
	Average   *float64 `json:"average"`
	Mode      *string  `json:"mode"`
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
	Range     *float64 `json:"range"`
	Consensus bool     `json:"consensus"`
}

type SessionState struct {
	SessionID    string              `json:"sessionId"`
	SessionName  string              `json:"sessionName"`
	ModeratorID  string              `json:"moderatorId"`
	CurrentTopic string              `json:"currentTopic,omitempty"`
	IsRevealed   bool                `json:"isRevealed"`
	Deck         []string            `json:"deck"`
	Participants []Participant       `json:"participants"`
	Votes        map[string]VoteView `json:"votes"`
	Statistics   *Statistics         `json:"statistics,omitempty"`
	History      []HistoryEntry      `json:"history,omitempty"`
}

type HistoryEntry struct {
	Topic      string            `json:"topic,omitempty"`
	Votes      map[string]string `json:"votes"`
	Statistics Statistics        `json:"statistics"`
}
