package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func (f *fixture) do(t *testing.T, method, path string, body any, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+f.token(t, userID))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestJoinEndpointRenamesOnCollision(t *testing.T) {
	f := newFixture(t)

	first := f.do(t, http.MethodPost, "/api/participants/join", map[string]any{"pin": testPIN, "name": "Bob"}, 0)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	second := f.do(t, http.MethodPost, "/api/participants/join", map[string]any{"pin": testPIN, "name": "Bob"}, 0)
	if second.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", second.Code, second.Body.String())
	}
	participant := decodeBody(t, second)["participant"].(map[string]any)
	if participant["name"] != "Bob_2" {
		t.Fatalf("expected Bob_2, got %v", participant["name"])
	}

	missing := f.do(t, http.MethodPost, "/api/participants/join", map[string]any{"pin": "000000", "name": "Bob"}, 0)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown pin, got %d", missing.Code)
	}
	blank := f.do(t, http.MethodPost, "/api/participants/join", map[string]any{"pin": testPIN, "name": "  "}, 0)
	if blank.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d", blank.Code)
	}
}

func TestAuthoringRequiresToken(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/quizzes", map[string]any{"title": "History"}, 0)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/quizzes", bytes.NewBufferString(`{"title":"History"}`))
	req.Header.Set("Authorization", "Bearer not-a-token")
	bad := httptest.NewRecorder()
	f.router.ServeHTTP(bad, req)
	if bad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", bad.Code)
	}
}

func TestAuthoringAndSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	created := f.do(t, http.MethodPost, "/api/quizzes", map[string]any{"title": "Capitals"}, ownerID)
	if created.Code != http.StatusCreated {
		t.Fatalf("create quiz: %d %s", created.Code, created.Body.String())
	}
	quizID := int64(decodeBody(t, created)["id"].(float64))
	base := "/api/quizzes/" + strconv.FormatInt(quizID, 10)

	added := f.do(t, http.MethodPost, base+"/questions", map[string]any{
		"text":  "Capital of France?",
		"order": 1,
		"choices": []map[string]any{
			{"text": "Paris", "is_correct": true},
			{"text": "Rome"},
		},
	}, ownerID)
	if added.Code != http.StatusCreated {
		t.Fatalf("add question: %d %s", added.Code, added.Body.String())
	}
	question := decodeBody(t, added)
	if question["time_limit"].(float64) != 30 {
		t.Fatalf("expected default time limit 30, got %v", question["time_limit"])
	}
	questionPath := "/api/questions/" + strconv.FormatInt(int64(question["id"].(float64)), 10)

	if rec := f.do(t, http.MethodPost, base+"/questions", map[string]any{"text": "x"}, strangerID); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign quiz, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, base, nil, strangerID); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 reading foreign quiz, got %d", rec.Code)
	}

	replaced := f.do(t, http.MethodPut, questionPath, map[string]any{
		"text":       "Capital of Italy?",
		"time_limit": 20,
		"choices":    []map[string]any{{"text": "Rome", "is_correct": true}},
	}, ownerID)
	if replaced.Code != http.StatusOK {
		t.Fatalf("replace question: %d %s", replaced.Code, replaced.Body.String())
	}
	if choices := decodeBody(t, replaced)["choices"].([]any); len(choices) != 1 {
		t.Fatalf("expected choices recreated, got %v", choices)
	}

	sessionRec := f.do(t, http.MethodPost, "/api/sessions", map[string]any{"quiz_id": quizID}, ownerID)
	if sessionRec.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", sessionRec.Code, sessionRec.Body.String())
	}
	session := decodeBody(t, sessionRec)
	if pin := session["pin"].(string); len(pin) != 6 {
		t.Fatalf("expected 6 digit pin, got %q", pin)
	}
	sessionPath := "/api/sessions/" + strconv.FormatInt(int64(session["id"].(float64)), 10)

	next := f.do(t, http.MethodPost, sessionPath+"/action/next", nil, ownerID)
	if next.Code != http.StatusOK {
		t.Fatalf("next: %d %s", next.Code, next.Body.String())
	}
	if text := decodeBody(t, next)["text"]; text != "Capital of Italy?" {
		t.Fatalf("expected first question, got %v", text)
	}

	ended := f.do(t, http.MethodPost, sessionPath+"/action/end", nil, ownerID)
	if ended.Code != http.StatusOK || decodeBody(t, ended)["is_active"] != false {
		t.Fatalf("end: %d %s", ended.Code, ended.Body.String())
	}
	started := f.do(t, http.MethodPost, sessionPath+"/action/start", nil, ownerID)
	if started.Code != http.StatusOK || decodeBody(t, started)["is_active"] != true {
		t.Fatalf("start: %d %s", started.Code, started.Body.String())
	}

	if rec := f.do(t, http.MethodPost, sessionPath+"/action/rewind", nil, ownerID); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, sessionPath+"/action/end", nil, strangerID); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for stranger, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, sessionPath, nil, 0); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 reading a session anonymously, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, sessionPath, nil, strangerID); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 reading a foreign session, got %d", rec.Code)
	}
	detail := f.do(t, http.MethodGet, sessionPath, nil, ownerID)
	if detail.Code != http.StatusOK {
		t.Fatalf("get session: %d %s", detail.Code, detail.Body.String())
	}
	if body := decodeBody(t, detail); body["live"] != false || body["pin"] != session["pin"] {
		t.Fatalf("expected idle session detail, got %v", body)
	}

	if rec := f.do(t, http.MethodDelete, sessionPath, nil, strangerID); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 deleting a foreign session, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, sessionPath, nil, ownerID); rec.Code != http.StatusNoContent {
		t.Fatalf("delete session: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodGet, sessionPath, nil, ownerID); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestQuizCatalogEndpoints(t *testing.T) {
	f := newFixture(t)

	created := f.do(t, http.MethodPost, "/api/quizzes", map[string]any{"title": "Capitals"}, ownerID)
	quizID := int64(decodeBody(t, created)["id"].(float64))
	base := "/api/quizzes/" + strconv.FormatInt(quizID, 10)

	listed := f.do(t, http.MethodGet, "/api/quizzes", nil, ownerID)
	if listed.Code != http.StatusOK {
		t.Fatalf("list: %d %s", listed.Code, listed.Body.String())
	}
	var quizzes []map[string]any
	if err := json.Unmarshal(listed.Body.Bytes(), &quizzes); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(quizzes) != 2 || int64(quizzes[0]["id"].(float64)) != quizID {
		t.Fatalf("expected both owner quizzes newest first, got %v", quizzes)
	}
	if rec := f.do(t, http.MethodGet, "/api/quizzes", nil, strangerID); rec.Body.String() != "[]" {
		t.Fatalf("expected empty list for stranger, got %s", rec.Body.String())
	}

	renamed := f.do(t, http.MethodPut, base, map[string]any{"title": "World capitals"}, ownerID)
	if renamed.Code != http.StatusOK || decodeBody(t, renamed)["title"] != "World capitals" {
		t.Fatalf("update quiz: %d %s", renamed.Code, renamed.Body.String())
	}

	questionsPath := "/api/quizzes/" + strconv.FormatInt(f.quiz.ID, 10) + "/questions"
	qs := f.do(t, http.MethodGet, questionsPath, nil, ownerID)
	var questions []map[string]any
	if err := json.Unmarshal(qs.Body.Bytes(), &questions); err != nil {
		t.Fatalf("decode questions: %v", err)
	}
	if len(questions) != 1 || int64(questions[0]["id"].(float64)) != f.question.ID {
		t.Fatalf("expected fixture question, got %v", questions)
	}
	if rec := f.do(t, http.MethodGet, questionsPath, nil, strangerID); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 listing foreign questions, got %d", rec.Code)
	}

	questionPath := "/api/questions/" + strconv.FormatInt(f.question.ID, 10)
	if rec := f.do(t, http.MethodDelete, questionPath, nil, strangerID); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 deleting foreign question, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, questionPath, nil, ownerID); rec.Code != http.StatusNoContent {
		t.Fatalf("delete question: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodDelete, questionPath, nil, ownerID); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted question, got %d", rec.Code)
	}

	if rec := f.do(t, http.MethodDelete, base, nil, strangerID); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 deleting foreign quiz, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, base, nil, ownerID); rec.Code != http.StatusNoContent {
		t.Fatalf("delete quiz: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodGet, base, nil, ownerID); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestAnswerFallbackUsesLedger(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/answers", map[string]any{"participant_id": f.alice.ID, "choice_id": f.right}, 0)
	if rec.Code != http.StatusOK {
		t.Fatalf("answer: %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["correct"] != true || body["score"].(float64) != 1 {
		t.Fatalf("unexpected answer result %v", body)
	}

	rec = f.do(t, http.MethodPost, "/api/answers", map[string]any{"participant_id": f.alice.ID, "choice_id": f.right}, 0)
	if score := decodeBody(t, rec)["score"].(float64); score != 1 {
		t.Fatalf("resubmitting the same choice must not add points, got %v", score)
	}

	scores := f.do(t, http.MethodGet, "/api/sessions/"+strconv.FormatInt(f.session.ID, 10)+"/scores", nil, 0)
	board := decodeBody(t, scores)["scoreboard"].([]any)
	if len(board) != 1 || board[0].(map[string]any)["score"].(float64) != 1 {
		t.Fatalf("unexpected scoreboard %v", board)
	}

	if rec := f.do(t, http.MethodPost, "/api/answers", map[string]any{"participant_id": f.alice.ID, "choice_id": 9999}, 0); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown choice, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/answers", map[string]any{"participant_id": f.alice.ID}, 0); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing choice, got %d", rec.Code)
	}
}
