package game

import (
	"context"
	"crypto/rand"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vinhdn/quizio/internal/domain"
	"github.com/vinhdn/quizio/internal/errors"
	"github.com/vinhdn/quizio/internal/event"
)

const pointsPerCorrectAnswer = 100

// Channel is the outbound side of the realtime transport. Sends are
// fire-and-forget: the engine never waits on a delivery.
type Channel interface {
	// Join subscribes a participant to a room's broadcasts.
	Join(room, participant string)
	// ToRoom sends an event to every member of a room.
	ToRoom(room, event string, data any)
	// ToParticipant sends an event to a single participant.
	ToParticipant(participant, event string, data any)
}

// QuizStore resolves quiz definitions. Read-only to the engine.
type QuizStore interface {
	GetByID(ctx context.Context, id string) (*domain.Quiz, error)
}

type Config struct {
	Channel  Channel
	Quizzes  QuizStore
	EventBus *event.Bus
	Registry *Registry

	// Now and NewTickerFunc default to the real clock; tests inject fakes.
	Now           func() time.Time
	NewTickerFunc func(d time.Duration) Ticker
}

// Service runs live quiz sessions: it owns the session registry and handles
// create/join/start/answer/advance events plus the per-question countdowns.
type Service struct {
	ch       Channel
	quizzes  QuizStore
	eb       *event.Bus
	registry *Registry

	now       func() time.Time
	newTicker func(d time.Duration) Ticker
}

func NewService(c Config) *Service {
	s := &Service{
		ch:        c.Channel,
		quizzes:   c.Quizzes,
		eb:        c.EventBus,
		registry:  c.Registry,
		now:       c.Now,
		newTicker: c.NewTickerFunc,
	}

	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newTicker == nil {
		s.newTicker = NewTicker
	}

	return s
}

// CreateSession registers a new non-live session for the given quiz, joins
// the host to its room and returns the generated code. Codes are 6-digit
// numeric strings; generation retries until the code is free.
func (s *Service) CreateSession(ctx context.Context, quizRef, host string) (string, error) {
	sess := newSession("", quizRef, host)
	for {
		code, err := generateCode()
		if err != nil {
			return "", errors.Internal(err)
		}

		sess.code = code
		if s.registry.put(sess) {
			break
		}
	}

	s.ch.Join(sess.code, host)
	s.ch.ToParticipant(host, EventSessionCreated, sess.code)

	metricSessionsCreated.Inc()
	slog.InfoContext(ctx, "game: session created", "code", sess.code, "quiz", quizRef)
	return sess.code, nil
}

// JoinSession adds a player to a session. The host is notified and the
// joiner gets a confirmation; an unknown code is reported to the joiner only.
func (s *Service) JoinSession(ctx context.Context, code, participant, name string) (*domain.Player, error) {
	sess, ok := s.registry.get(code)
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: code=%s", code))
	}

	p := sess.addPlayer(participant, name)

	s.ch.Join(code, participant)
	s.ch.ToParticipant(sess.host, EventPlayerJoined, p)
	s.ch.ToParticipant(participant, EventJoinSuccess, JoinSuccessPayload{Code: code, Name: name})

	s.eb.Publish(ctx, domain.EventPlayerJoined{Code: code, Player: p})
	return &p, nil
}

// StartSession makes the session live and dispatches the first question.
// Requests from anyone but the host, or for an already live session, are
// silently ignored.
func (s *Service) StartSession(ctx context.Context, code, requester string) {
	sess, ok := s.registry.get(code)
	if !ok {
		return
	}

	sess.mu.Lock()
	if sess.host != requester || sess.live {
		sess.mu.Unlock()
		return
	}
	sess.live = true
	sess.current = 0
	sess.mu.Unlock()

	s.ch.ToRoom(code, EventGameStarted, nil)
	s.dispatchQuestion(ctx, sess)
}

// AdvanceQuestion moves the session to the next question. Advancing while a
// countdown is still running is a host override that truncates the current
// question. Non-host requests and sessions that have not started are
// silently ignored; StartSession is the only way to reach question zero.
func (s *Service) AdvanceQuestion(ctx context.Context, code, requester string) {
	sess, ok := s.registry.get(code)
	if !ok {
		return
	}

	sess.mu.Lock()
	if sess.host != requester || !sess.live {
		sess.mu.Unlock()
		return
	}
	sess.current++
	sess.mu.Unlock()

	s.dispatchQuestion(ctx, sess)
}

// SubmitAnswer scores an answer against the question on screen at receipt
// time. Unknown sessions, sessions that are not live yet and unknown players
// are all silent no-ops. A correct answer awards a flat score and may take
// over the fastest-correct record when strictly faster than the current one,
// so the first received answer wins ties. The host is told the player
// answered either way; correctness is never revealed to the room.
//
// A player may submit more than once per question and each submission is
// evaluated independently. Known, intentional behavior.
func (s *Service) SubmitAnswer(ctx context.Context, code, participant string, answerIndex int) {
	sess, ok := s.registry.get(code)
	if !ok {
		return
	}

	sess.mu.Lock()
	if !sess.live || sess.quiz == nil || sess.current < 0 || sess.current >= len(sess.quiz.Questions) {
		sess.mu.Unlock()
		return
	}

	p, ok := sess.byPlayer[participant]
	if !ok {
		sess.mu.Unlock()
		return
	}

	q := sess.quiz.Questions[sess.current]
	correct := q.CorrectOptionIndex == answerIndex

	var scored domain.Player
	if correct {
		p.Score += pointsPerCorrectAnswer

		elapsed := s.now().Sub(sess.questionStartedAt).Seconds()
		if sess.fastest == nil || elapsed < sess.fastest.Elapsed {
			sess.fastest = &domain.FastestAnswer{
				PlayerName: p.DisplayName,
				Display:    decimal.NewFromFloat(elapsed).StringFixed(2),
				Elapsed:    elapsed,
			}
		}
		scored = *p
	}
	host := sess.host
	sess.mu.Unlock()

	if correct {
		metricAnswers.WithLabelValues("correct").Inc()
		s.eb.Publish(ctx, domain.EventScoreUpdated{Code: code, Player: scored})
	} else {
		metricAnswers.WithLabelValues("incorrect").Inc()
	}

	s.ch.ToParticipant(host, EventPlayerAnswered, PlayerAnsweredPayload{PlayerID: participant})
}

// dispatchQuestion broadcasts the question at the current index and starts
// its countdown, or ends the game when the index has run past the quiz.
func (s *Service) dispatchQuestion(ctx context.Context, sess *session) {
	quiz, err := s.loadSnapshot(ctx, sess)
	if err != nil {
		slog.ErrorContext(ctx, "game: load quiz snapshot failed",
			"code", sess.code, "quiz", sess.quizRef, "error", err)
		return
	}

	sess.mu.Lock()
	idx := sess.current
	if idx >= len(quiz.Questions) {
		sess.stopTimer()
		players := sess.roster()
		sess.mu.Unlock()
		s.endGame(ctx, sess, players)
		return
	}

	q := quiz.Questions[idx]
	sess.questionStartedAt = s.now()
	sess.fastest = nil
	sess.stopTimer()
	cd := newCountdown()
	sess.timer = cd
	sess.mu.Unlock()

	s.ch.ToRoom(sess.code, EventNewQuestion, NewQuestionPayload{
		Text:      q.QuestionText,
		Options:   q.Options,
		TimeLimit: q.TimeLimitSeconds,
		Index:     idx,
		Total:     len(quiz.Questions),
	})

	go s.runCountdown(sess, cd, q.TimeLimitSeconds)
}

// loadSnapshot returns the session's quiz snapshot, resolving it from the
// store on first use. The store call happens outside the session lock.
func (s *Service) loadSnapshot(ctx context.Context, sess *session) (*domain.Quiz, error) {
	sess.mu.Lock()
	quiz := sess.quiz
	sess.mu.Unlock()

	if quiz != nil {
		return quiz, nil
	}

	quiz, err := s.quizzes.GetByID(ctx, sess.quizRef)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.quiz == nil {
		sess.quiz = quiz
	}
	quiz = sess.quiz
	sess.mu.Unlock()
	return quiz, nil
}

// runCountdown ticks once per second, broadcasting the remaining time. On
// reaching zero it announces the question end with the fastest-correct
// snapshot. A stopped countdown exits without broadcasting.
func (s *Service) runCountdown(sess *session, cd *countdown, seconds int) {
	t := s.newTicker(time.Second)
	defer t.Stop()

	remaining := seconds
	for {
		select {
		case <-cd.stop:
			return
		case <-t.C():
			if cd.stopped() {
				return
			}

			remaining--
			s.ch.ToRoom(sess.code, EventTimerTick, remaining)
			if remaining > 0 {
				continue
			}

			cd.Stop()
			sess.mu.Lock()
			fastest := sess.fastest
			if sess.timer == cd {
				sess.timer = nil
			}
			sess.mu.Unlock()

			s.ch.ToRoom(sess.code, EventQuestionEnded, QuestionEndedPayload{FastestCorrect: fastest})
			return
		}
	}
}

// endGame runs the terminal step at most once per session: the registry
// removal gates the game-over broadcast and the archive handoff, so racing
// advances cannot double-fire it. The result is published on the event bus;
// a failed save is the archive handler's problem and cannot touch game state.
func (s *Service) endGame(ctx context.Context, sess *session, players []domain.Player) {
	if !s.registry.remove(sess.code) {
		return
	}

	s.ch.ToRoom(sess.code, EventGameOver, players)

	s.eb.Publish(ctx, domain.EventGameEnded{
		Result: domain.GameResult{
			QuizID:   sess.quizRef,
			Code:     sess.code,
			Players:  players,
			PlayedAt: s.now(),
		},
	})

	metricSessionsEnded.Inc()
	slog.InfoContext(ctx, "game: session ended", "code", sess.code, "players", len(players))
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(100000+n.Int64(), 10), nil
}
