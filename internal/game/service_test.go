package game_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vinhdn/quizio/internal/domain"
	"github.com/vinhdn/quizio/internal/errors"
	"github.com/vinhdn/quizio/internal/event"
	"github.com/vinhdn/quizio/internal/game"
)

const (
	hostID  = "host-1"
	waitFor = time.Second
	tickGap = time.Millisecond
)

func TestService_CreateSession(t *testing.T) {
	t.Parallel()

	f := makeFixture(twoQuestionQuiz())

	code, err := f.svc.CreateSession(context.Background(), "q1", hostID)
	require.NoError(t, err)
	require.Len(t, code, 6, "session codes are 6-digit numeric strings")

	require.Equal(t, []join{{room: code, participant: hostID}}, f.ch.joins())

	created := f.ch.toParticipant(hostID, game.EventSessionCreated)
	require.Len(t, created, 1)
	require.Equal(t, code, created[0].data)
}

func TestService_JoinSession(t *testing.T) {
	t.Parallel()

	t.Run("known code", func(t *testing.T) {
		f := makeFixture(twoQuestionQuiz())
		code := f.createSession(t)

		p, err := f.svc.JoinSession(context.Background(), code, "p1", "alice")
		require.NoError(t, err)
		require.Equal(t, &domain.Player{Identity: "p1", DisplayName: "alice"}, p)

		joined := f.ch.toParticipant(hostID, game.EventPlayerJoined)
		require.Len(t, joined, 1)
		require.Equal(t, domain.Player{Identity: "p1", DisplayName: "alice"}, joined[0].data)

		success := f.ch.toParticipant("p1", game.EventJoinSuccess)
		require.Len(t, success, 1)
		require.Equal(t, game.JoinSuccessPayload{Code: code, Name: "alice"}, success[0].data)
	})

	t.Run("unknown code", func(t *testing.T) {
		f := makeFixture(twoQuestionQuiz())

		_, err := f.svc.JoinSession(context.Background(), "000000", "p1", "alice")
		require.True(t, errors.IsCode(err, errors.CodeNotFound))
		require.Empty(t, f.ch.roomSends(), "an unknown code must not produce any room broadcast")
	})
}

func TestService_StartSession(t *testing.T) {
	t.Parallel()

	t.Run("non-host start is ignored", func(t *testing.T) {
		f := makeFixture(twoQuestionQuiz())
		code := f.createSession(t)

		f.svc.StartSession(context.Background(), code, "p1")

		require.Empty(t, f.ch.toRoom(code, game.EventGameStarted))
		require.Empty(t, f.ch.toRoom(code, game.EventNewQuestion))
		require.Zero(t, f.tickers.created())
	})

	t.Run("host start broadcasts the first question", func(t *testing.T) {
		f := makeFixture(twoQuestionQuiz())
		code := f.createSession(t)

		f.svc.StartSession(context.Background(), code, hostID)

		require.Len(t, f.ch.toRoom(code, game.EventGameStarted), 1)

		questions := f.ch.toRoom(code, game.EventNewQuestion)
		require.Len(t, questions, 1)
		require.Equal(t, game.NewQuestionPayload{
			Text:      "What is 1+1?",
			Options:   []string{"1", "2", "3", "4"},
			TimeLimit: 3,
			Index:     0,
			Total:     2,
		}, questions[0].data)

		require.Equal(t, 1, f.tickers.active(), "exactly one countdown per session")
	})

	t.Run("second start is ignored", func(t *testing.T) {
		f := makeFixture(twoQuestionQuiz())
		code := f.createSession(t)

		f.svc.StartSession(context.Background(), code, hostID)
		f.svc.StartSession(context.Background(), code, hostID)

		require.Len(t, f.ch.toRoom(code, game.EventGameStarted), 1)
		require.Len(t, f.ch.toRoom(code, game.EventNewQuestion), 1)
	})
}

func TestService_Countdown(t *testing.T) {
	t.Parallel()

	f := makeFixture(twoQuestionQuiz())
	code := f.createSession(t)
	f.svc.StartSession(context.Background(), code, hostID)

	f.tickers.tick(0)
	f.tickers.tick(0)
	require.Eventually(t, func() bool {
		return len(f.ch.toRoom(code, game.EventTimerTick)) == 2
	}, waitFor, tickGap)

	ticks := f.ch.toRoom(code, game.EventTimerTick)
	require.Equal(t, 2, ticks[0].data)
	require.Equal(t, 1, ticks[1].data)

	f.tickers.tick(0)
	require.Eventually(t, func() bool {
		return len(f.ch.toRoom(code, game.EventQuestionEnded)) == 1
	}, waitFor, tickGap)

	ticks = f.ch.toRoom(code, game.EventTimerTick)
	require.Equal(t, 0, ticks[2].data, "the final tick broadcasts zero before the question ends")

	ended := f.ch.toRoom(code, game.EventQuestionEnded)
	require.Equal(t, game.QuestionEndedPayload{}, ended[0].data,
		"a question with no correct answers ends with no fastest-correct record")

	require.Eventually(t, func() bool { return f.tickers.active() == 0 }, waitFor, tickGap,
		"the countdown must release its ticker after the question ends")
}

func TestService_SubmitAnswer(t *testing.T) {
	t.Parallel()

	t.Run("correct answer scores and records fastest", func(t *testing.T) {
		f := makeFixture(twoQuestionQuiz())
		code := f.startedSession(t, "alice", "bob")

		f.clock.advance(3410 * time.Millisecond)
		f.svc.SubmitAnswer(context.Background(), code, "alice", 1)

		f.clock.set(f.start.Add(1020 * time.Millisecond))
		f.svc.SubmitAnswer(context.Background(), code, "bob", 1)

		f.endQuestion(t, code)

		ended := f.ch.toRoom(code, game.EventQuestionEnded)
		require.Len(t, ended, 1)
		payload := ended[0].data.(game.QuestionEndedPayload)
		require.NotNil(t, payload.FastestCorrect)
		require.Equal(t, "bob", payload.FastestCorrect.PlayerName, "the smaller elapsed time wins")
		require.InDelta(t, 1.02, payload.FastestCorrect.Elapsed, 1e-9)
		require.Equal(t, "1.02", payload.FastestCorrect.Display)
	})

	t.Run("equal elapsed keeps the first received answer", func(t *testing.T) {
		f := makeFixture(twoQuestionQuiz())
		code := f.startedSession(t, "alice", "bob")

		f.clock.advance(2 * time.Second)
		f.svc.SubmitAnswer(context.Background(), code, "alice", 1)
		f.svc.SubmitAnswer(context.Background(), code, "bob", 1)

		f.endQuestion(t, code)

		payload := f.ch.toRoom(code, game.EventQuestionEnded)[0].data.(game.QuestionEndedPayload)
		require.NotNil(t, payload.FastestCorrect)
		require.Equal(t, "alice", payload.FastestCorrect.PlayerName)
	})

	t.Run("wrong answer notifies the host but does not score", func(t *testing.T) {
		f := makeFixture(twoQuestionQuiz())
		code := f.startedSession(t, "alice")

		f.svc.SubmitAnswer(context.Background(), code, "alice", 0)

		answered := f.ch.toParticipant(hostID, game.EventPlayerAnswered)
		require.Len(t, answered, 1)
		require.Equal(t, game.PlayerAnsweredPayload{PlayerID: "alice"}, answered[0].data)

		f.endQuestion(t, code)
		payload := f.ch.toRoom(code, game.EventQuestionEnded)[0].data.(game.QuestionEndedPayload)
		require.Nil(t, payload.FastestCorrect)
	})

	t.Run("repeat submissions each score again", func(t *testing.T) {
		// Known, intentional behavior: nothing stops a player from
		// answering the same question twice.
		f := makeFixture(twoQuestionQuiz())
		code := f.startedSession(t, "alice")

		f.svc.SubmitAnswer(context.Background(), code, "alice", 1)
		f.svc.SubmitAnswer(context.Background(), code, "alice", 1)

		result := f.finishGame(t, code)
		require.Equal(t, []domain.Player{
			{Identity: "alice", DisplayName: "alice", Score: 200},
		}, result.Players)
	})

	t.Run("no-ops", func(t *testing.T) {
		f := makeFixture(twoQuestionQuiz())
		code := f.createSession(t)
		_, err := f.svc.JoinSession(context.Background(), code, "alice", "alice")
		require.NoError(t, err)

		// Session not live yet.
		f.svc.SubmitAnswer(context.Background(), code, "alice", 1)
		require.Empty(t, f.ch.toParticipant(hostID, game.EventPlayerAnswered))

		f.svc.StartSession(context.Background(), code, hostID)

		// Unknown session and unknown player.
		f.svc.SubmitAnswer(context.Background(), "000000", "alice", 1)
		f.svc.SubmitAnswer(context.Background(), code, "stranger", 1)
		require.Empty(t, f.ch.toParticipant(hostID, game.EventPlayerAnswered))
	})
}

func TestService_AdvanceQuestion(t *testing.T) {
	t.Parallel()

	t.Run("advance before start is ignored", func(t *testing.T) {
		f := makeFixture(twoQuestionQuiz())
		code := f.createSession(t)

		f.svc.AdvanceQuestion(context.Background(), code, hostID)

		require.Empty(t, f.ch.toRoom(code, game.EventNewQuestion))
		require.Zero(t, f.tickers.created())

		// Starting afterwards still dispatches question zero exactly once.
		f.svc.StartSession(context.Background(), code, hostID)
		questions := f.ch.toRoom(code, game.EventNewQuestion)
		require.Len(t, questions, 1)
		require.Equal(t, 0, questions[0].data.(game.NewQuestionPayload).Index)
	})

	t.Run("non-host advance is ignored", func(t *testing.T) {
		f := makeFixture(twoQuestionQuiz())
		code := f.startedSession(t, "alice")

		f.svc.AdvanceQuestion(context.Background(), code, "alice")

		require.Len(t, f.ch.toRoom(code, game.EventNewQuestion), 1)
		require.Equal(t, 1, f.tickers.active())
	})

	t.Run("host advance truncates the running question", func(t *testing.T) {
		f := makeFixture(twoQuestionQuiz())
		code := f.startedSession(t, "alice")

		f.svc.AdvanceQuestion(context.Background(), code, hostID)

		questions := f.ch.toRoom(code, game.EventNewQuestion)
		require.Len(t, questions, 2)
		require.Equal(t, 0, questions[0].data.(game.NewQuestionPayload).Index)
		require.Equal(t, 1, questions[1].data.(game.NewQuestionPayload).Index)

		require.Eventually(t, func() bool { return f.tickers.active() == 1 }, waitFor, tickGap,
			"the old countdown must be canceled before the new one starts")
		require.Empty(t, f.ch.toRoom(code, game.EventQuestionEnded),
			"a truncated question never announces its end")
	})

	t.Run("answers land on the question current at receipt time", func(t *testing.T) {
		f := makeFixture(twoQuestionQuiz())
		code := f.startedSession(t, "alice")

		f.svc.AdvanceQuestion(context.Background(), code, hostID)

		// Question 2's correct option differs from question 1's.
		f.svc.SubmitAnswer(context.Background(), code, "alice", 1)
		f.endQuestion(t, code)

		payload := f.ch.toRoom(code, game.EventQuestionEnded)[0].data.(game.QuestionEndedPayload)
		require.Nil(t, payload.FastestCorrect, "option 1 is wrong for the second question")
	})
}

func TestService_GameOver(t *testing.T) {
	t.Parallel()

	f := makeFixture(twoQuestionQuiz())
	code := f.startedSession(t, "alice", "bob")

	f.svc.SubmitAnswer(context.Background(), code, "alice", 1) // correct on q1
	f.endQuestion(t, code)

	f.svc.AdvanceQuestion(context.Background(), code, hostID)
	f.svc.SubmitAnswer(context.Background(), code, "bob", 2) // correct on q2
	f.endQuestion(t, code)

	f.svc.AdvanceQuestion(context.Background(), code, hostID)

	require.Eventually(t, func() bool {
		return len(f.ch.toRoom(code, game.EventGameOver)) == 1
	}, waitFor, tickGap)

	wantPlayers := []domain.Player{
		{Identity: "alice", DisplayName: "alice", Score: 100},
		{Identity: "bob", DisplayName: "bob", Score: 100},
	}
	require.Equal(t, wantPlayers, f.ch.toRoom(code, game.EventGameOver)[0].data,
		"final roster keeps join order")

	f.eb.Stop()
	result := f.archived()
	require.Len(t, result, 1)
	require.Equal(t, "q1", result[0].QuizID)
	require.Equal(t, code, result[0].Code)
	require.Equal(t, wantPlayers, result[0].Players)

	require.Zero(t, f.tickers.active(), "game over cancels any outstanding timer")

	// The code is freed exactly once; the session is gone.
	_, err := f.svc.JoinSession(context.Background(), code, "late", "late")
	require.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestService_QuestionIndexNeverRepeats(t *testing.T) {
	t.Parallel()

	f := makeFixture(twoQuestionQuiz())
	code := f.startedSession(t, "alice")

	f.svc.StartSession(context.Background(), code, hostID) // ignored: already live
	f.svc.AdvanceQuestion(context.Background(), code, hostID)

	questions := f.ch.toRoom(code, game.EventNewQuestion)
	last := -1
	for _, q := range questions {
		idx := q.data.(game.NewQuestionPayload).Index
		require.Greater(t, idx, last, "question index must be strictly increasing")
		last = idx
	}
}

func TestService_SnapshotLoadFailure(t *testing.T) {
	t.Parallel()

	f := makeFixture() // store has no quizzes
	code := f.createSession(t)

	f.svc.StartSession(context.Background(), code, hostID)

	require.Len(t, f.ch.toRoom(code, game.EventGameStarted), 1)
	require.Empty(t, f.ch.toRoom(code, game.EventNewQuestion),
		"a failed snapshot load must not broadcast a question")
	require.Zero(t, f.tickers.created())
}

// --- fixture ---

type fixture struct {
	svc     *game.Service
	ch      *fakeChannel
	eb      *event.Bus
	clock   *fakeClock
	tickers *tickerFactory
	start   time.Time

	mu      sync.Mutex
	results []domain.GameResult
}

func makeFixture(quizzes ...*domain.Quiz) *fixture {
	f := &fixture{
		ch:      &fakeChannel{},
		eb:      event.NewBus(),
		clock:   &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		tickers: &tickerFactory{},
	}
	f.start = f.clock.now()

	f.eb.Subscribe(domain.EventNameGameEnded, func(ctx context.Context, e event.Event) error {
		f.mu.Lock()
		f.results = append(f.results, e.(domain.EventGameEnded).Result)
		f.mu.Unlock()
		return nil
	})

	f.svc = game.NewService(game.Config{
		Channel:       f.ch,
		Quizzes:       &fakeStore{quizzes: quizzes},
		EventBus:      f.eb,
		Now:           f.clock.now,
		NewTickerFunc: f.tickers.new,
	})
	return f
}

func (f *fixture) createSession(t *testing.T) string {
	t.Helper()
	code, err := f.svc.CreateSession(context.Background(), "q1", hostID)
	require.NoError(t, err)
	return code
}

// startedSession creates a session, joins the named players and starts it.
func (f *fixture) startedSession(t *testing.T, players ...string) string {
	t.Helper()
	code := f.createSession(t)
	for _, p := range players {
		_, err := f.svc.JoinSession(context.Background(), code, p, p)
		require.NoError(t, err)
	}
	f.svc.StartSession(context.Background(), code, hostID)
	return code
}

// endQuestion drives the newest countdown to zero and waits for the
// question-ended broadcast.
func (f *fixture) endQuestion(t *testing.T, code string) {
	t.Helper()
	i := f.tickers.created() - 1
	before := len(f.ch.toRoom(code, game.EventQuestionEnded))
	for f.tickers.tickDown(i) {
	}
	require.Eventually(t, func() bool {
		return len(f.ch.toRoom(code, game.EventQuestionEnded)) == before+1
	}, waitFor, tickGap)
}

// finishGame ends every remaining question and advances past the quiz,
// returning the archived result.
func (f *fixture) finishGame(t *testing.T, code string) domain.GameResult {
	t.Helper()
	f.endQuestion(t, code)
	f.svc.AdvanceQuestion(context.Background(), code, hostID)
	f.endQuestion(t, code)
	f.svc.AdvanceQuestion(context.Background(), code, hostID)

	require.Eventually(t, func() bool {
		return len(f.ch.toRoom(code, game.EventGameOver)) == 1
	}, waitFor, tickGap)

	f.eb.Stop()
	results := f.archived()
	require.Len(t, results, 1)
	return results[0]
}

func (f *fixture) archived() []domain.GameResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.GameResult(nil), f.results...)
}

func twoQuestionQuiz() *domain.Quiz {
	return &domain.Quiz{
		QuizID: "q1",
		Title:  "arithmetic",
		Questions: []domain.Question{
			{
				QuestionText:       "What is 1+1?",
				Options:            []string{"1", "2", "3", "4"},
				CorrectOptionIndex: 1,
				TimeLimitSeconds:   3,
			},
			{
				QuestionText:       "What is 2+2?",
				Options:            []string{"2", "3", "4", "5"},
				CorrectOptionIndex: 2,
				TimeLimitSeconds:   2,
			},
		},
	}
}

// --- fakes ---

type join struct {
	room, participant string
}

type sent struct {
	room        string
	participant string
	event       string
	data        any
}

// fakeChannel records every outbound send so tests can assert on exactly
// what the engine emitted, and to whom.
type fakeChannel struct {
	mu     sync.Mutex
	joined []join
	room   []sent
	direct []sent
}

func (c *fakeChannel) Join(room, participant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = append(c.joined, join{room: room, participant: participant})
}

func (c *fakeChannel) ToRoom(room, event string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = append(c.room, sent{room: room, event: event, data: data})
}

func (c *fakeChannel) ToParticipant(participant, event string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.direct = append(c.direct, sent{participant: participant, event: event, data: data})
}

func (c *fakeChannel) joins() []join {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]join(nil), c.joined...)
}

func (c *fakeChannel) roomSends() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sent(nil), c.room...)
}

func (c *fakeChannel) toRoom(room, event string) []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sent
	for _, s := range c.room {
		if s.room == room && s.event == event {
			out = append(out, s)
		}
	}
	return out
}

func (c *fakeChannel) toParticipant(participant, event string) []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sent
	for _, s := range c.direct {
		if s.participant == participant && s.event == event {
			out = append(out, s)
		}
	}
	return out
}

type fakeStore struct {
	quizzes []*domain.Quiz
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*domain.Quiz, error) {
	for _, q := range s.quizzes {
		if q.QuizID == id {
			return q, nil
		}
	}
	return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: id=%s", id))
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// fakeTicker is driven manually; sends block until the countdown picks the
// tick up, so broadcasts from earlier ticks are visible once the next send
// returns.
type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type tickerFactory struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (f *tickerFactory) new(time.Duration) game.Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *tickerFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

// active counts tickers that have not been stopped yet: the number of live
// countdowns.
func (f *tickerFactory) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickers {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

// tick delivers one tick to ticker i, blocking until it is consumed.
func (f *tickerFactory) tick(i int) {
	f.mu.Lock()
	t := f.tickers[i]
	f.mu.Unlock()
	t.ch <- time.Time{}
}

// tickDown delivers one tick to ticker i and reports whether the countdown
// is still consuming; it returns false once the ticker is stopped.
func (f *tickerFactory) tickDown(i int) bool {
	f.mu.Lock()
	t := f.tickers[i]
	f.mu.Unlock()

	select {
	case t.ch <- time.Time{}:
		return true
	case <-time.After(10 * time.Millisecond):
		return !t.isStopped()
	}
}
