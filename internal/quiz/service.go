package quiz

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vinhdn/quizio/internal/domain"
	"github.com/vinhdn/quizio/internal/errors"
)

const defaultTimeLimitSeconds = 20

type Config struct {
	DB *pgxpool.Pool
}

// Service persists quiz definitions. The game engine only reads from it.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
	}
}

type CreateQuizRequest struct {
	Title     string
	Questions []domain.Question
}

// Create stores a new quiz with its ordered questions.
func (s *Service) Create(ctx context.Context, req CreateQuizRequest) (*domain.Quiz, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	q := &domain.Quiz{
		Title:     req.Title,
		Questions: make([]domain.Question, len(req.Questions)),
	}
	copy(q.Questions, req.Questions)
	for i := range q.Questions {
		if q.Questions[i].TimeLimitSeconds <= 0 {
			q.Questions[i].TimeLimitSeconds = defaultTimeLimitSeconds
		}
	}

	if err := s.insertQuiz(ctx, q); err != nil {
		return nil, err
	}

	return q, nil
}

func validateCreate(req CreateQuizRequest) error {
	if req.Title == "" {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("title is required"))
	}
	if len(req.Questions) == 0 {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("at least one question is required"))
	}

	for i, q := range req.Questions {
		if q.QuestionText == "" {
			return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("question %d: text is required", i))
		}
		if len(q.Options) < 2 {
			return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("question %d: at least two options are required", i))
		}
		if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options) {
			return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("question %d: correct option index out of range", i))
		}
	}

	return nil
}

func (s *Service) insertQuiz(ctx context.Context, q *domain.Quiz) (err error) {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate quiz ID: %w", err)
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
		insQuizStmt     = `INSERT INTO quizzes (quiz_id, title) VALUES ($1, $2) RETURNING create_time;`
		insQuestionStmt = `
INSERT INTO quiz_questions (quiz_id, position, question_text, options, correct_option_index, time_limit_seconds)
VALUES ($1, $2, $3, $4, $5, $6);`
	)

	err = tx.QueryRow(ctx, insQuizStmt, id, q.Title).Scan(&q.CreateTime)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	q.QuizID = id.String()
	for i, question := range q.Questions { // TODO: Batch insert
		_, err = tx.Exec(ctx, insQuestionStmt,
			id, i, question.QuestionText, question.Options, question.CorrectOptionIndex, question.TimeLimitSeconds)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// List returns all quizzes without their questions.
func (s *Service) List(ctx context.Context) ([]domain.Quiz, error) {
	const stmt = `SELECT quiz_id, title, create_time FROM quizzes ORDER BY create_time DESC;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Quiz, error) {
		var q domain.Quiz
		if err := r.Scan(&q.QuizID, &q.Title, &q.CreateTime); err != nil {
			return domain.Quiz{}, err
		}
		return q, nil
	})
}

// GetByID returns a full quiz snapshot including its ordered questions.
func (s *Service) GetByID(ctx context.Context, id string) (*domain.Quiz, error) {
	const quizStmt = `SELECT title, create_time FROM quizzes WHERE quiz_id = $1;`

	q := &domain.Quiz{QuizID: id}
	err := s.db.QueryRow(ctx, quizStmt, id).Scan(&q.Title, &q.CreateTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: id=%s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("select quiz: %w", err)
	}

	const questionStmt = `
SELECT question_text, options, correct_option_index, time_limit_seconds
FROM quiz_questions
WHERE quiz_id = $1
ORDER BY position;`

	rows, err := s.db.Query(ctx, questionStmt, id)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}

	q.Questions, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var question domain.Question
		if err := r.Scan(&question.QuestionText, &question.Options, &question.CorrectOptionIndex, &question.TimeLimitSeconds); err != nil {
			return domain.Question{}, err
		}
		return question, nil
	})
	if err != nil {
		return nil, err
	}

	return q, nil
}
