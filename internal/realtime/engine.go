package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/logger"
)

// State is the lifecycle position of one connection.
type State int

const (
	StateConnecting State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseMissingPIN is the websocket close code used when the session PIN is absent.
const CloseMissingPIN = 4001

var ErrMissingPIN = errors.New("session pin is missing")

// Conn is the engine-side state of one connection.
type Conn struct {
	mu            sync.Mutex
	member        Member
	pin           string
	state         State
	participantID int64
	host          bool
}

func (c *Conn) PIN() string { return c.pin }

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ParticipantID is the participant confirmed by a successful join, or zero.
func (c *Conn) ParticipantID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participantID
}

// IsHost reports whether host_join succeeded on this connection.
func (c *Conn) IsHost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// SessionLookup resolves sessions and participants for membership checks.
type SessionLookup interface {
	SessionByPIN(ctx context.Context, pin string) (domain.Session, error)
	Participant(ctx context.Context, id int64) (domain.Participant, error)
}

type AnswerRecorder interface {
	RecordAnswer(ctx context.Context, participantID, choiceID int64) (app.AnswerOutcome, error)
}

type Scoreboards interface {
	ForPIN(ctx context.Context, pin string) ([]domain.ScoreEntry, error)
}

// OwnershipChecker reports whether a user owns the quiz behind a session PIN.
type OwnershipChecker interface {
	OwnsSession(ctx context.Context, userID int64, pin string) (bool, error)
}

type EngineDeps struct {
	Groups          *Groups
	Sessions        SessionLookup
	Ledger          AnswerRecorder
	Scoreboards     Scoreboards
	Ownership       OwnershipChecker
	Questions       app.QuestionSource
	Tokens          app.TokenVerifier
	RequireHostPush bool
	Logger          *logger.Logger
}

// Engine runs the per-connection session protocol.
type Engine struct {
	groups          *Groups
	sessions        SessionLookup
	ledger          AnswerRecorder
	scoreboards     Scoreboards
	ownership       OwnershipChecker
	questions       app.QuestionSource
	tokens          app.TokenVerifier
	requireHostPush bool
	log             *logger.Logger
}

func NewEngine(deps EngineDeps) *Engine {
	return &Engine{
		groups:          deps.Groups,
		sessions:        deps.Sessions,
		ledger:          deps.Ledger,
		scoreboards:     deps.Scoreboards,
		ownership:       deps.Ownership,
		questions:       deps.Questions,
		tokens:          deps.Tokens,
		requireHostPush: deps.RequireHostPush,
		log:             deps.Logger.With("component", "engine"),
	}
}

// Connect admits m to the group of pin and sends it the current scoreboard.
// An empty pin leaves the connection Closed and returns ErrMissingPIN.
func (e *Engine) Connect(ctx context.Context, pin string, m Member) (*Conn, error) {
	c := &Conn{member: m, pin: strings.TrimSpace(pin), state: StateConnecting}
	if c.pin == "" {
		c.setState(StateClosed)
		e.log.Info("connection rejected", "member", m.ID(), "code", CloseMissingPIN)
		return c, ErrMissingPIN
	}
	if err := e.groups.Join(ctx, c.pin, m); err != nil {
		c.setState(StateClosed)
		return c, err
	}
	c.setState(StateJoined)
	e.log.Info("connection admitted", "pin", c.pin, "member", m.ID())

	board, err := e.scoreboards.ForPIN(ctx, c.pin)
	if err != nil {
		e.log.Warn("initial scoreboard unavailable", "pin", c.pin, "error", err)
		return c, nil
	}
	e.reply(c, scoreUpdate(board))
	return c, nil
}

// Disconnect removes a joined connection from its group. Safe to call more than once.
func (e *Engine) Disconnect(ctx context.Context, c *Conn) {
	c.mu.Lock()
	joined := c.state == StateJoined
	c.state = StateClosed
	c.mu.Unlock()
	if !joined {
		return
	}
	e.groups.Leave(ctx, c.pin, c.member.ID())
	e.log.Info("connection closed", "pin", c.pin, "member", c.member.ID())
}

// Handle processes one inbound frame. Frames on a connection that is not Joined are ignored.
func (e *Engine) Handle(ctx context.Context, c *Conn, raw []byte) {
	if c.State() != StateJoined {
		return
	}
	msg, err := Decode(raw)
	var perr *ProtocolError
	if errors.As(err, &perr) {
		e.reply(c, errorFrame{Error: perr.Code})
		return
	}

	switch m := msg.(type) {
	case PingMessage:
		e.reply(c, pongFrame{Action: "pong"})
	case JoinMessage:
		e.handleJoin(ctx, c, m)
	case HostJoinMessage:
		e.handleHostJoin(ctx, c, m)
	case AnswerMessage:
		e.handleAnswer(ctx, c, m)
	case PushQuestionMessage:
		e.handlePushQuestion(ctx, c, m)
	case UnknownMessage:
		e.reply(c, errorFrame{Error: CodeUnknownAction, Action: m.Action})
	}
}

func (e *Engine) handleJoin(ctx context.Context, c *Conn, m JoinMessage) {
	failed := errorFrame{Error: CodeJoinFailed, Detail: "Invalid participant or session"}
	session, err := e.sessions.SessionByPIN(ctx, c.pin)
	if err != nil {
		e.log.Debug("join against unknown session", "pin", c.pin, "error", err)
		e.reply(c, failed)
		return
	}
	participant, err := e.sessions.Participant(ctx, m.ParticipantID)
	if err != nil || participant.SessionID != session.ID {
		e.reply(c, failed)
		return
	}

	c.mu.Lock()
	c.participantID = participant.ID
	c.mu.Unlock()
	e.reply(c, typeFrame{Type: "join_success"})
}

func (e *Engine) handleHostJoin(ctx context.Context, c *Conn, m HostJoinMessage) {
	failed := errorFrame{Error: CodeHostJoinFailed, Detail: "Invalid token or session ownership"}
	// hosting is only granted for the group this connection belongs to
	if strings.TrimSpace(m.SessionPIN) != c.pin {
		e.reply(c, failed)
		return
	}
	userID, err := e.tokens.Verify(m.Token)
	if err != nil {
		e.reply(c, failed)
		return
	}
	owns, err := e.ownership.OwnsSession(ctx, userID, c.pin)
	if err != nil || !owns {
		e.reply(c, failed)
		return
	}

	c.mu.Lock()
	c.host = true
	c.mu.Unlock()
	e.log.Info("host joined", "pin", c.pin, "user", userID)
	e.reply(c, typeFrame{Type: "host_join_success"})
}

func (e *Engine) handleAnswer(ctx context.Context, c *Conn, m AnswerMessage) {
	if _, err := e.ledger.RecordAnswer(ctx, m.ParticipantID, m.ChoiceID); err != nil {
		e.log.Warn("answer not saved", "pin", c.pin, "participant", m.ParticipantID, "choice", m.ChoiceID, "error", err)
		e.reply(c, errorFrame{Error: CodeSaveFailed})
		return
	}
	board, err := e.scoreboards.ForPIN(ctx, c.pin)
	if err != nil {
		e.log.Error("scoreboard after answer", "pin", c.pin, "error", err)
		e.reply(c, errorFrame{Error: CodeSaveFailed})
		return
	}
	if err := e.groups.Broadcast(ctx, c.pin, scoreUpdate(board)); err != nil {
		e.log.Error("broadcast scoreboard", "pin", c.pin, "error", err)
	}
}

func (e *Engine) handlePushQuestion(ctx context.Context, c *Conn, m PushQuestionMessage) {
	if e.requireHostPush && !c.IsHost() {
		e.reply(c, errorFrame{Error: CodeHostRequired})
		return
	}
	view, err := e.questions.QuestionView(ctx, m.QuestionID)
	if err != nil {
		if domain.IsNotFound(err) {
			e.reply(c, errorFrame{Error: CodeQuestionNotFound})
			return
		}
		e.log.Error("load question", "question", m.QuestionID, "error", err)
		e.reply(c, errorFrame{Error: CodeLookupFailed})
		return
	}
	if err := e.groups.Broadcast(ctx, c.pin, questionPush(view)); err != nil {
		e.log.Error("broadcast question", "pin", c.pin, "error", err)
	}
}

func (e *Engine) reply(c *Conn, frame any) {
	if !e.groups.SendTo(c.member.ID(), frame) {
		e.log.Debug("reply dropped", "pin", c.pin, "member", c.member.ID())
	}
}
