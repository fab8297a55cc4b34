package domain

import (
	"time"
)

// Quiz is a quiz definition: a title plus an ordered list of questions.
// Once loaded into a running session it is treated as immutable.
type Quiz struct {
	QuizID     string
	Title      string
	Questions  []Question
	CreateTime time.Time
}

type Question struct {
	QuestionText       string
	Options            []string
	CorrectOptionIndex int
	TimeLimitSeconds   int
}

// Player is one participant in a running session. Identity is the
// participant's connection ID and lives only as long as the connection.
type Player struct {
	Identity    string `json:"id"`
	DisplayName string `json:"name"`
	Score       int    `json:"score"`
}

// FastestAnswer records the quickest correct answer for the question
// currently on screen. Elapsed is seconds since the question was broadcast;
// Display is Elapsed rendered with two decimals for clients.
type FastestAnswer struct {
	PlayerName string  `json:"name"`
	Display    string  `json:"time"`
	Elapsed    float64 `json:"rawTime"`
}

// GameResult is the terminal record of a finished session, handed to the
// archive when the session is torn down.
type GameResult struct {
	QuizID   string
	Code     string
	Players  []Player
	PlayedAt time.Time
}

// Leaderboard lists players of a session and their scores,
// sorted by score in descending order.
type Leaderboard struct {
	Code    string
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	PlayerName string
	Score      float64
}
