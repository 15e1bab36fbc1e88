package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/logger"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Presence reports whether a session PIN currently has live connections.
type Presence interface {
	Live(ctx context.Context, pin string) (bool, error)
}

// APIHandler serves the authoring, lifecycle, join and answer endpoints.
type APIHandler struct {
	quizzes     *app.QuizService
	sessions    *app.SessionService
	joins       *app.JoinService
	ledger      *app.Ledger
	scoreboards *app.ScoreboardBuilder
	presence    Presence
	log         *logger.Logger
}

func NewAPIHandler(
	quizzes *app.QuizService,
	sessions *app.SessionService,
	joins *app.JoinService,
	ledger *app.Ledger,
	scoreboards *app.ScoreboardBuilder,
	presence Presence,
	log *logger.Logger,
) *APIHandler {
	return &APIHandler{
		quizzes:     quizzes,
		sessions:    sessions,
		joins:       joins,
		ledger:      ledger,
		scoreboards: scoreboards,
		presence:    presence,
		log:         log.With("component", "api"),
	}
}

type createQuizRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type choiceRequest struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type questionRequest struct {
	Text      string          `json:"text"`
	TimeLimit int             `json:"time_limit"`
	Order     int             `json:"order"`
	Choices   []choiceRequest `json:"choices"`
}

func (r questionRequest) toDomain() domain.Question {
	q := domain.Question{Text: r.Text, TimeLimit: r.TimeLimit, Order: r.Order}
	for _, c := range r.Choices {
		q.Choices = append(q.Choices, domain.Choice{Text: c.Text, IsCorrect: c.IsCorrect})
	}
	return q
}

type sessionDetail struct {
	domain.Session
	Live bool `json:"live"`
}

type createSessionRequest struct {
	QuizID int64 `json:"quiz_id"`
}

type nextQuestionRequest struct {
	QuestionID int64 `json:"question_id"`
}

type joinRequest struct {
	PIN  string `json:"pin"`
	Name string `json:"name"`
}

type joinResponse struct {
	Participant joinedParticipant `json:"participant"`
	Session     joinedSession     `json:"session"`
}

type joinedParticipant struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type joinedSession struct {
	ID  int64  `json:"id"`
	PIN string `json:"pin"`
}

type answerRequest struct {
	ParticipantID int64 `json:"participant_id"`
	ChoiceID      int64 `json:"choice_id"`
}

type answerResponse struct {
	AnswerID int64 `json:"answer_id"`
	Correct  bool  `json:"correct"`
	Score    int   `json:"score"`
}

func (h *APIHandler) CreateQuiz(c *gin.Context) {
	var req createQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	quiz, err := h.quizzes.Create(c.Request.Context(), currentUser(c), req.Title, req.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, quiz)
}

func (h *APIHandler) GetQuiz(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	quiz, err := h.quizzes.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

func (h *APIHandler) ListQuizzes(c *gin.Context) {
	quizzes, err := h.quizzes.List(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quizzes)
}

func (h *APIHandler) UpdateQuiz(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req createQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	quiz, err := h.quizzes.Update(c.Request.Context(), currentUser(c), id, req.Title, req.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

func (h *APIHandler) DeleteQuiz(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.quizzes.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListQuestions returns a quiz's questions in play order for the host to pick from.
func (h *APIHandler) ListQuestions(c *gin.Context) {
	quizID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	questions, err := h.quizzes.Questions(c.Request.Context(), currentUser(c), quizID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, questions)
}

func (h *APIHandler) AddQuestion(c *gin.Context) {
	quizID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	question, err := h.quizzes.AddQuestion(c.Request.Context(), currentUser(c), quizID, req.toDomain())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, question)
}

func (h *APIHandler) ReplaceQuestion(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	question := req.toDomain()
	question.ID = id
	updated, err := h.quizzes.ReplaceQuestion(c.Request.Context(), currentUser(c), question)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *APIHandler) DeleteQuestion(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.quizzes.DeleteQuestion(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.QuizID <= 0 {
		h.badRequest(c, "quiz_id is required")
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), currentUser(c), req.QuizID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *APIHandler) GetSession(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	session, err := h.sessions.Get(ctx, currentUser(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	detail := sessionDetail{Session: session}
	if h.presence != nil {
		live, err := h.presence.Live(ctx, session.PIN)
		if err != nil {
			h.log.Warn("presence lookup failed", "pin", session.PIN, "error", err)
		}
		detail.Live = live
	}
	c.JSON(http.StatusOK, detail)
}

func (h *APIHandler) DeleteSession(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SessionAction runs start, end or next on a session owned by the caller.
func (h *APIHandler) SessionAction(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	user := currentUser(c)

	switch c.Param("action") {
	case "start":
		session, err := h.sessions.Start(ctx, user, id)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	case "end":
		session, err := h.sessions.End(ctx, user, id)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	case "next":
		var req nextQuestionRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				h.badRequest(c, "Invalid request body")
				return
			}
		}
		question, err := h.sessions.Next(ctx, user, id, req.QuestionID)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, question)
	default:
		h.badRequest(c, "Unknown action")
	}
}

func (h *APIHandler) Scores(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	board, err := h.scoreboards.ForSession(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scoreboard": board})
}

func (h *APIHandler) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	participant, session, err := h.joins.Join(c.Request.Context(), req.PIN, req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, joinResponse{
		Participant: joinedParticipant{ID: participant.ID, Name: participant.Name, Score: participant.Score},
		Session:     joinedSession{ID: session.ID, PIN: session.PIN},
	})
}

// SubmitAnswer is the HTTP fallback for the answer action; it goes through the same ledger.
func (h *APIHandler) SubmitAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ParticipantID <= 0 || req.ChoiceID <= 0 {
		h.badRequest(c, "participant_id and choice_id are required")
		return
	}
	outcome, err := h.ledger.RecordAnswer(c.Request.Context(), req.ParticipantID, req.ChoiceID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, answerResponse{
		AnswerID: outcome.Answer.ID,
		Correct:  outcome.Correct,
		Score:    outcome.Score,
	})
}

func (h *APIHandler) pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *APIHandler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: http.StatusText(http.StatusBadRequest), Message: message})
}

func (h *APIHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, errorResponse{Error: http.StatusText(status), Message: "internal error"})
		return
	}
	c.JSON(status, errorResponse{Error: http.StatusText(status), Message: err.Error()})
}

func statusFor(err error) int {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDuplicateName), errors.Is(err, domain.ErrNameExhausted), errors.Is(err, domain.ErrPINTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
