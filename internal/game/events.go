package game

import (
	"github.com/vinhdn/quizio/internal/domain"
)

// Outbound wire events. Room-addressed unless noted.
const (
	EventSessionCreated = "session-created" // host only
	EventPlayerJoined   = "player-joined"   // host only
	EventJoinSuccess    = "join-success"    // joiner only
	EventError          = "error"           // requester only
	EventGameStarted    = "game-started"
	EventNewQuestion    = "new-question"
	EventTimerTick      = "timer-tick"
	EventQuestionEnded  = "question-ended"
	EventGameOver       = "game-over"
	EventPlayerAnswered = "player-answered" // host only
)

type NewQuestionPayload struct {
	Text      string   `json:"text"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"timeLimit"`
	Index     int      `json:"index"`
	Total     int      `json:"total"`
}

type JoinSuccessPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type QuestionEndedPayload struct {
	FastestCorrect *domain.FastestAnswer `json:"fastestCorrect"`
}

type PlayerAnsweredPayload struct {
	PlayerID string `json:"playerId"`
}
