package archive

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vinhdn/quizio/internal/domain"
	"github.com/vinhdn/quizio/internal/event"
)

type Config struct {
	EventBus *event.Bus
	DB       *pgxpool.Pool
}

// Service archives finished sessions. It consumes game.ended events off the
// bus, so a failed save is logged by the bus and never reaches the engine.
type Service struct {
	eb *event.Bus
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	s := &Service{
		eb: c.EventBus,
		db: c.DB,
	}

	s.eb.Subscribe(domain.EventNameGameEnded, func(ctx context.Context, e event.Event) error {
		return s.Save(ctx, e.(domain.EventGameEnded).Result)
	})

	return s
}

// Save stores the final roster and scores of a finished session.
func (s *Service) Save(ctx context.Context, res domain.GameResult) (err error) {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate result ID: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		insResultStmt = `INSERT INTO game_results (result_id, quiz_id, code, played_at) VALUES ($1, $2, $3, $4);`
		insPlayerStmt = `INSERT INTO result_players (result_id, position, name, score) VALUES ($1, $2, $3, $4);`
	)

	_, err = tx.Exec(ctx, insResultStmt, id, res.QuizID, res.Code, res.PlayedAt)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	for i, p := range res.Players {
		_, err = tx.Exec(ctx, insPlayerStmt, id, i, p.DisplayName, p.Score)
		if err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListByQuiz returns archived results for a quiz, most recent first,
// with players in roster order. The join is left outer so a session that
// ended with an empty roster still shows up.
func (s *Service) ListByQuiz(ctx context.Context, quizID string) ([]domain.GameResult, error) {
	const stmt = `
SELECT r.result_id, r.code, r.played_at, p.name, p.score
FROM game_results r
LEFT JOIN result_players p ON p.result_id = r.result_id
WHERE r.quiz_id = $1
ORDER BY r.played_at DESC, p.position;`

	rows, err := s.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var (
		results []domain.GameResult
		lastID  string
	)
	for rows.Next() {
		var (
			id    string
			res   domain.GameResult
			name  *string
			score *int
		)
		if err := rows.Scan(&id, &res.Code, &res.PlayedAt, &name, &score); err != nil {
			return nil, err
		}

		if id != lastID {
			res.QuizID = quizID
			results = append(results, res)
			lastID = id
		}
		if name == nil {
			continue
		}
		last := &results[len(results)-1]
		last.Players = append(last.Players, domain.Player{DisplayName: *name, Score: *score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
