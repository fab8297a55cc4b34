package domain

const (
	EventNamePlayerJoined = "player.joined"
	EventNameScoreUpdated = "score.updated"
	EventNameGameEnded    = "game.ended"
)

type EventPlayerJoined struct {
	Code   string
	Player Player
}

func (EventPlayerJoined) Name() string { return EventNamePlayerJoined }

type EventScoreUpdated struct {
	Code   string
	Player Player
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

type EventGameEnded struct {
	Result GameResult
}

func (EventGameEnded) Name() string { return EventNameGameEnded }
