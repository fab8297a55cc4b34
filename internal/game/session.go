package game

import (
	"sync"
	"time"

	"github.com/vinhdn/quizio/internal/domain"
)

// session is the live state of one running game. All fields behind mu are
// mutated only while holding it: inbound events and timer ticks for the same
// session never interleave mid-mutation.
type session struct {
	code    string
	quizRef string
	host    string

	mu sync.Mutex

	// quiz is the immutable snapshot, loaded lazily on first dispatch.
	quiz *domain.Quiz

	players  []*domain.Player // join order
	byPlayer map[string]*domain.Player

	current           int // -1 before start; >= len(questions) means game over
	live              bool
	questionStartedAt time.Time
	fastest           *domain.FastestAnswer

	// timer is the countdown for the question on screen. At most one per
	// session; replacing it always stops the previous one first.
	timer *countdown
}

func newSession(code, quizRef, host string) *session {
	return &session{
		code:     code,
		quizRef:  quizRef,
		host:     host,
		byPlayer: make(map[string]*domain.Player),
		current:  -1,
	}
}

// addPlayer appends a player with zero score, preserving join order.
func (s *session) addPlayer(identity, name string) domain.Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &domain.Player{
		Identity:    identity,
		DisplayName: name,
	}
	s.players = append(s.players, p)
	s.byPlayer[identity] = p
	return *p
}

// roster returns a copy of the player list in join order.
// Callers must hold s.mu.
func (s *session) roster() []domain.Player {
	players := make([]domain.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, *p)
	}
	return players
}

// stopTimer cancels the active countdown, if any. Callers must hold s.mu.
func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
