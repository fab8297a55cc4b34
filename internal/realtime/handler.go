package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vinhdn/quizio/internal/errors"
	"github.com/vinhdn/quizio/internal/game"
)

// Inbound wire events.
const (
	eventCreateSession   = "create-session"
	eventJoinSession     = "join-session"
	eventStartSession    = "start-session"
	eventSubmitAnswer    = "submit-answer"
	eventAdvanceQuestion = "advance-question"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Hosts and players connect from arbitrary origins; there is no
	// authentication layer in front of this.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades the connection, assigns the participant identity and
// pumps inbound frames into the game service until the peer disconnects.
func (h *Hub) Handler(g *game.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		cl := newClient(uuid.NewString(), conn)
		h.register(cl)
		go cl.writePump()

		h.readLoop(c.Request.Context(), g, cl)
	}
}

func (h *Hub) readLoop(ctx context.Context, g *game.Service, cl *client) {
	defer h.unregister(cl)

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			h.ToParticipant(cl.id, game.EventError, "bad frame")
			continue
		}

		h.dispatch(ctx, g, cl, f)
	}
}

func (h *Hub) dispatch(ctx context.Context, g *game.Service, cl *client, f Frame) {
	switch f.Event {
	case eventCreateSession:
		var quizRef string
		if err := json.Unmarshal(f.Data, &quizRef); err != nil {
			h.ToParticipant(cl.id, game.EventError, "bad payload")
			return
		}
		if _, err := g.CreateSession(ctx, quizRef, cl.id); err != nil {
			h.ToParticipant(cl.id, game.EventError, errors.Convert(err).Message)
		}

	case eventJoinSession:
		var req struct {
			Code string `json:"code"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(f.Data, &req); err != nil {
			h.ToParticipant(cl.id, game.EventError, "bad payload")
			return
		}
		if _, err := g.JoinSession(ctx, req.Code, cl.id, req.Name); err != nil {
			h.ToParticipant(cl.id, game.EventError, errors.Convert(err).Message)
		}

	case eventStartSession:
		var code string
		if err := json.Unmarshal(f.Data, &code); err != nil {
			h.ToParticipant(cl.id, game.EventError, "bad payload")
			return
		}
		g.StartSession(ctx, code, cl.id)

	case eventSubmitAnswer:
		var req struct {
			Code        string `json:"code"`
			AnswerIndex int    `json:"answerIndex"`
		}
		if err := json.Unmarshal(f.Data, &req); err != nil {
			h.ToParticipant(cl.id, game.EventError, "bad payload")
			return
		}
		g.SubmitAnswer(ctx, req.Code, cl.id, req.AnswerIndex)

	case eventAdvanceQuestion:
		var code string
		if err := json.Unmarshal(f.Data, &code); err != nil {
			h.ToParticipant(cl.id, game.EventError, "bad payload")
			return
		}
		g.AdvanceQuestion(ctx, code, cl.id)

	default:
		h.ToParticipant(cl.id, game.EventError, "unknown event")
	}
}
