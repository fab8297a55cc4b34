package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vinhdn/quizio/internal/archive"
	"github.com/vinhdn/quizio/internal/domain"
	"github.com/vinhdn/quizio/internal/errors"
	"github.com/vinhdn/quizio/internal/game"
	"github.com/vinhdn/quizio/internal/leaderboard"
	"github.com/vinhdn/quizio/internal/quiz"
	"github.com/vinhdn/quizio/internal/realtime"
)

type Config struct {
	Router      *gin.Engine
	Hub         *realtime.Hub
	Game        *game.Service
	Quiz        *quiz.Service
	Archive     *archive.Service
	Leaderboard *leaderboard.Service
}

type API struct {
	qs *quiz.Service
	as *archive.Service
	ls *leaderboard.Service
}

func New(c Config) *API {
	a := &API{
		qs: c.Quiz,
		as: c.Archive,
		ls: c.Leaderboard,
	}

	// The game itself is played over the websocket endpoint; HTTP covers
	// quiz authoring and read-only lookups.
	c.Router.GET("/ws", c.Hub.Handler(c.Game))

	g := c.Router.Group("/api")
	g.POST("/quizzes", a.createQuiz)
	g.GET("/quizzes", a.listQuizzes)
	g.GET("/quizzes/:id", a.getQuiz)
	g.GET("/quizzes/:id/results", a.listResults)
	g.GET("/sessions/:code/leaderboard", a.getLeaderboard)

	return a
}

type (
	Quiz struct {
		QuizID    string     `json:"id,omitempty"`
		Title     string     `json:"title"`
		Questions []Question `json:"questions,omitempty"`
	}

	Question struct {
		QuestionText       string   `json:"questionText"`
		Options            []string `json:"options"`
		CorrectOptionIndex int      `json:"correctOptionIndex"`
		TimeLimit          int      `json:"timeLimit"`
	}
)

func (a *API) createQuiz(c *gin.Context) {
	var req Quiz
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	questions := make([]domain.Question, 0, len(req.Questions))
	for _, q := range req.Questions {
		questions = append(questions, domain.Question{
			QuestionText:       q.QuestionText,
			Options:            q.Options,
			CorrectOptionIndex: q.CorrectOptionIndex,
			TimeLimitSeconds:   q.TimeLimit,
		})
	}

	created, err := a.qs.Create(c.Request.Context(), quiz.CreateQuizRequest{
		Title:     req.Title,
		Questions: questions,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toQuiz(created))
}

func (a *API) listQuizzes(c *gin.Context) {
	quizzes, err := a.qs.List(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := make([]Quiz, 0, len(quizzes))
	for i := range quizzes {
		resp = append(resp, toQuiz(&quizzes[i]))
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) getQuiz(c *gin.Context) {
	q, err := a.qs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuiz(q))
}

func (a *API) listResults(c *gin.Context) {
	results, err := a.as.ListByQuiz(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

func (a *API) getLeaderboard(c *gin.Context) {
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		Code: c.Param("code"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}

func toQuiz(q *domain.Quiz) Quiz {
	out := Quiz{
		QuizID: q.QuizID,
		Title:  q.Title,
	}
	for _, question := range q.Questions {
		out.Questions = append(out.Questions, Question{
			QuestionText:       question.QuestionText,
			Options:            question.Options,
			CorrectOptionIndex: question.CorrectOptionIndex,
			TimeLimit:          question.TimeLimitSeconds,
		})
	}
	return out
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e.Message})
}
