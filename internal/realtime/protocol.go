package realtime

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"live-quiz-service/internal/domain"
)

// Action tags of inbound frames.
const (
	ActionPing             = "ping"
	ActionJoin             = "join"
	ActionHostJoin         = "host_join"
	ActionAnswer           = "answer"
	ActionHostPushQuestion = "host_push_question"
)

// Error codes sent back to the sender.
const (
	CodeInvalidJSON          = "invalid_json"
	CodeUnknownAction        = "unknown_action"
	CodeMissingParticipantID = "missing_participant_id"
	CodeMissingTokenOrPIN    = "missing_token_or_pin"
	CodeMissingFields        = "missing_fields"
	CodeMissingQuestionID    = "missing_question_id"
	CodeJoinFailed           = "join_failed"
	CodeHostJoinFailed       = "host_join_failed"
	CodeSaveFailed           = "save_failed"
	CodeQuestionNotFound     = "question_not_found"
	CodeLookupFailed         = "lookup_failed"
	CodeHostRequired         = "host_required"
)

// Inbound is the closed set of messages a client may send.
type Inbound interface {
	inbound()
}

type PingMessage struct{}

type JoinMessage struct {
	ParticipantID int64
}

type HostJoinMessage struct {
	Token      string
	SessionPIN string
}

type AnswerMessage struct {
	ParticipantID int64
	ChoiceID      int64
}

type PushQuestionMessage struct {
	QuestionID int64
}

type UnknownMessage struct {
	Action string
}

func (PingMessage) inbound()         {}
func (JoinMessage) inbound()         {}
func (HostJoinMessage) inbound()     {}
func (AnswerMessage) inbound()       {}
func (PushQuestionMessage) inbound() {}
func (UnknownMessage) inbound()      {}

// ProtocolError is a malformed or incomplete frame; it is reported to the sender only.
type ProtocolError struct {
	Code string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Code
}

// Decode parses one inbound frame into its message kind.
// Every error returned by Decode is a *ProtocolError.
func Decode(raw []byte) (Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, &ProtocolError{Code: CodeInvalidJSON}
	}

	action := stringField(fields, "action")
	switch action {
	case ActionPing:
		return PingMessage{}, nil
	case ActionJoin:
		participantID, ok := idField(fields, "participant_id")
		if !ok {
			return nil, &ProtocolError{Code: CodeMissingParticipantID}
		}
		return JoinMessage{ParticipantID: participantID}, nil
	case ActionHostJoin:
		token := stringField(fields, "token")
		pin := stringField(fields, "session_pin")
		if token == "" || pin == "" {
			return nil, &ProtocolError{Code: CodeMissingTokenOrPIN}
		}
		return HostJoinMessage{Token: token, SessionPIN: pin}, nil
	case ActionAnswer:
		participantID, okP := idField(fields, "participant_id")
		choiceID, okC := idField(fields, "choice_id")
		if !okP || !okC {
			return nil, &ProtocolError{Code: CodeMissingFields}
		}
		return AnswerMessage{ParticipantID: participantID, ChoiceID: choiceID}, nil
	case ActionHostPushQuestion:
		questionID, ok := idField(fields, "question_id")
		if !ok {
			return nil, &ProtocolError{Code: CodeMissingQuestionID}
		}
		return PushQuestionMessage{QuestionID: questionID}, nil
	default:
		return UnknownMessage{Action: action}, nil
	}
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// idField accepts a positive integer given as a JSON number or a numeric string.
func idField(fields map[string]json.RawMessage, key string) (int64, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, false
	}
	raw = bytes.TrimSpace(raw)
	text := string(raw)
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Outbound frames.

type errorFrame struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Action string `json:"action,omitempty"`
}

type pongFrame struct {
	Action string `json:"action"`
}

type typeFrame struct {
	Type string `json:"type"`
}

type scoreUpdateFrame struct {
	Type       string              `json:"type"`
	Scoreboard []domain.ScoreEntry `json:"scoreboard"`
}

type questionFrame struct {
	Type     string              `json:"type"`
	Question domain.QuestionView `json:"question"`
}

func scoreUpdate(board []domain.ScoreEntry) scoreUpdateFrame {
	if board == nil {
		board = []domain.ScoreEntry{}
	}
	return scoreUpdateFrame{Type: "score_update", Scoreboard: board}
}

func questionPush(view domain.QuestionView) questionFrame {
	return questionFrame{Type: "question", Question: view}
}
