package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"

	pinConstraint  = "sessions_pin_key"
	nameConstraint = "participants_session_name_key"
)

// Registry stores quizzes, sessions, participants and answers in Postgres.
// Each call acquires its own connection or transaction from the pool.
type Registry struct {
	pool *pgxpool.Pool
}

var _ app.Registry = (*Registry)(nil)

func NewRegistry(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

const sessionColumns = `id, quiz_id, code, pin, started_at, ended_at, is_active`

func scanSession(row pgx.Row) (domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.QuizID, &s.Code, &s.PIN, &s.StartedAt, &s.EndedAt, &s.IsActive)
	return s, err
}

func (r *Registry) SessionByPIN(ctx context.Context, pin string) (domain.Session, error) {
	session, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE pin=$1`, pin))
	if err != nil {
		return domain.Session{}, notFound(err, domain.ErrSessionNotFound, "session by pin")
	}
	return session, nil
}

func (r *Registry) Session(ctx context.Context, id int64) (domain.Session, error) {
	session, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id))
	if err != nil {
		return domain.Session{}, notFound(err, domain.ErrSessionNotFound, "session")
	}
	return session, nil
}

func (r *Registry) PINExists(ctx context.Context, pin string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE pin=$1)`, pin).Scan(&exists); err != nil {
		return false, fmt.Errorf("pin exists: %w", err)
	}
	return exists, nil
}

func (r *Registry) CreateSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (quiz_id, code, pin, started_at, ended_at, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		session.QuizID, session.Code, session.PIN, session.StartedAt, session.EndedAt, session.IsActive,
	).Scan(&session.ID)
	switch {
	case isViolation(err, uniqueViolation, pinConstraint):
		return domain.Session{}, domain.ErrPINTaken
	case isViolation(err, foreignKeyViolation, ""):
		return domain.Session{}, domain.ErrQuizNotFound
	case err != nil:
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (r *Registry) UpdateSession(ctx context.Context, session domain.Session) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET started_at=$2, ended_at=$3, is_active=$4 WHERE id=$1`,
		session.ID, session.StartedAt, session.EndedAt, session.IsActive,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// DeleteSession relies on the participants and answers foreign keys to cascade.
func (r *Registry) DeleteSession(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

const participantColumns = `id, session_id, name, score, joined_at`

func scanParticipant(row pgx.Row) (domain.Participant, error) {
	var p domain.Participant
	err := row.Scan(&p.ID, &p.SessionID, &p.Name, &p.Score, &p.JoinedAt)
	return p, err
}

func (r *Registry) Participant(ctx context.Context, id int64) (domain.Participant, error) {
	participant, err := scanParticipant(r.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id=$1`, id))
	if err != nil {
		return domain.Participant{}, notFound(err, domain.ErrParticipantNotFound, "participant")
	}
	return participant, nil
}

func (r *Registry) Participants(ctx context.Context, sessionID int64) ([]domain.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id=$1
		 ORDER BY score DESC, joined_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Registry) CreateParticipant(ctx context.Context, sessionID int64, name string) (domain.Participant, error) {
	participant, err := scanParticipant(r.pool.QueryRow(ctx,
		`INSERT INTO participants (session_id, name) VALUES ($1, $2) RETURNING `+participantColumns,
		sessionID, name))
	switch {
	case isViolation(err, uniqueViolation, nameConstraint):
		return domain.Participant{}, domain.ErrDuplicateName
	case isViolation(err, foreignKeyViolation, ""):
		return domain.Participant{}, domain.ErrSessionNotFound
	case err != nil:
		return domain.Participant{}, fmt.Errorf("create participant: %w", err)
	}
	return participant, nil
}

// SettleAnswer locks the participant row and the prior answer, then writes the settled answer and
// score in the same transaction.
func (r *Registry) SettleAnswer(ctx context.Context, participantID, questionID int64, settle app.SettleFunc) (domain.Answer, error) {
	var result domain.Answer
	err := r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var score int
		if err := tx.QueryRow(ctx, `SELECT score FROM participants WHERE id=$1 FOR UPDATE`, participantID).Scan(&score); err != nil {
			return notFound(err, domain.ErrParticipantNotFound, "lock participant")
		}

		var prior *domain.Answer
		existing := domain.Answer{ParticipantID: participantID, QuestionID: questionID}
		err := tx.QueryRow(ctx,
			`SELECT id, choice_id, is_correct, answered_at FROM answers
			 WHERE participant_id=$1 AND question_id=$2 FOR UPDATE`,
			participantID, questionID,
		).Scan(&existing.ID, &existing.ChoiceID, &existing.IsCorrect, &existing.AnsweredAt)
		switch {
		case err == nil:
			prior = &existing
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("lock answer: %w", err)
		}

		next, newScore := settle(prior, score)
		next.ParticipantID = participantID
		next.QuestionID = questionID
		if err := tx.QueryRow(ctx,
			`INSERT INTO answers (participant_id, question_id, choice_id, is_correct, answered_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (participant_id, question_id)
			 DO UPDATE SET choice_id=EXCLUDED.choice_id, is_correct=EXCLUDED.is_correct
			 RETURNING id, answered_at`,
			participantID, questionID, next.ChoiceID, next.IsCorrect, next.AnsweredAt,
		).Scan(&next.ID, &next.AnsweredAt); err != nil {
			if isViolation(err, foreignKeyViolation, "") {
				return domain.ErrChoiceNotFound
			}
			return fmt.Errorf("upsert answer: %w", err)
		}

		if newScore != score {
			if _, err := tx.Exec(ctx, `UPDATE participants SET score=$2 WHERE id=$1`, participantID, newScore); err != nil {
				return fmt.Errorf("update score: %w", err)
			}
		}
		result = next
		return nil
	})
	if err != nil {
		return domain.Answer{}, err
	}
	return result, nil
}

func (r *Registry) Answers(ctx context.Context, participantID int64) ([]domain.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, participant_id, question_id, choice_id, is_correct, answered_at
		 FROM answers WHERE participant_id=$1 ORDER BY id`, participantID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Answer, 0)
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.ID, &a.ParticipantID, &a.QuestionID, &a.ChoiceID, &a.IsCorrect, &a.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Registry) Quiz(ctx context.Context, id int64) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, owner_id, created_at FROM quizzes WHERE id=$1`, id,
	).Scan(&quiz.ID, &quiz.Title, &quiz.Description, &quiz.OwnerID, &quiz.CreatedAt)
	if err != nil {
		return domain.Quiz{}, notFound(err, domain.ErrQuizNotFound, "quiz")
	}

	questions, err := r.questions(ctx, `quiz_id=$1 ORDER BY position, id`, id)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.Questions = questions
	return quiz, nil
}

func (r *Registry) Quizzes(ctx context.Context, ownerID int64) ([]domain.Quiz, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, description, owner_id, created_at FROM quizzes WHERE owner_id=$1 ORDER BY id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Quiz, 0)
	for rows.Next() {
		var quiz domain.Quiz
		if err := rows.Scan(&quiz.ID, &quiz.Title, &quiz.Description, &quiz.OwnerID, &quiz.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		out = append(out, quiz)
	}
	return out, rows.Err()
}

func (r *Registry) CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO quizzes (title, description, owner_id, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		quiz.Title, quiz.Description, quiz.OwnerID, quiz.CreatedAt,
	).Scan(&quiz.ID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	quiz.Questions = nil
	return quiz, nil
}

func (r *Registry) UpdateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	err := r.pool.QueryRow(ctx,
		`UPDATE quizzes SET title=$2, description=$3 WHERE id=$1 RETURNING owner_id, created_at`,
		quiz.ID, quiz.Title, quiz.Description,
	).Scan(&quiz.OwnerID, &quiz.CreatedAt)
	if err != nil {
		return domain.Quiz{}, notFound(err, domain.ErrQuizNotFound, "update quiz")
	}
	quiz.Questions = nil
	return quiz, nil
}

func (r *Registry) DeleteQuiz(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM quizzes WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (r *Registry) Question(ctx context.Context, id int64) (domain.Question, error) {
	questions, err := r.questions(ctx, `id=$1`, id)
	if err != nil {
		return domain.Question{}, err
	}
	if len(questions) == 0 {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return questions[0], nil
}

// questions loads the questions matching where, each with its choices in id order.
func (r *Registry) questions(ctx context.Context, where string, args ...interface{}) ([]domain.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, quiz_id, text, time_limit, position, created_at FROM questions WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	var (
		questions []domain.Question
		ids       []int64
	)
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Text, &q.TimeLimit, &q.Order, &q.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Choices = []domain.Choice{}
		questions = append(questions, q)
		ids = append(ids, q.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(ids) == 0 {
		return questions, nil
	}

	choiceRows, err := r.pool.Query(ctx,
		`SELECT id, question_id, text, is_correct FROM choices WHERE question_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("load choices: %w", err)
	}
	defer choiceRows.Close()

	index := make(map[int64]int, len(questions))
	for i, q := range questions {
		index[q.ID] = i
	}
	for choiceRows.Next() {
		var c domain.Choice
		if err := choiceRows.Scan(&c.ID, &c.QuestionID, &c.Text, &c.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan choice: %w", err)
		}
		i := index[c.QuestionID]
		questions[i].Choices = append(questions[i].Choices, c)
	}
	return questions, choiceRows.Err()
}

func (r *Registry) Choice(ctx context.Context, id int64) (domain.Choice, error) {
	var c domain.Choice
	err := r.pool.QueryRow(ctx,
		`SELECT id, question_id, text, is_correct FROM choices WHERE id=$1`, id,
	).Scan(&c.ID, &c.QuestionID, &c.Text, &c.IsCorrect)
	if err != nil {
		return domain.Choice{}, notFound(err, domain.ErrChoiceNotFound, "choice")
	}
	return c, nil
}

func (r *Registry) CreateQuestion(ctx context.Context, question domain.Question) (domain.Question, error) {
	err := r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO questions (quiz_id, text, time_limit, position, created_at)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			question.QuizID, question.Text, question.TimeLimit, question.Order, question.CreatedAt,
		).Scan(&question.ID)
		if isViolation(err, foreignKeyViolation, "") {
			return domain.ErrQuizNotFound
		}
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		return insertChoices(ctx, tx, &question)
	})
	if err != nil {
		return domain.Question{}, err
	}
	return question, nil
}

// ReplaceQuestion rewrites the question and recreates its choices. Answers that referenced the old
// choices are removed by the cascade.
func (r *Registry) ReplaceQuestion(ctx context.Context, question domain.Question) (domain.Question, error) {
	err := r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE questions SET text=$2, time_limit=$3, position=$4 WHERE id=$1 RETURNING quiz_id, created_at`,
			question.ID, question.Text, question.TimeLimit, question.Order,
		).Scan(&question.QuizID, &question.CreatedAt)
		if err != nil {
			return notFound(err, domain.ErrQuestionNotFound, "update question")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM choices WHERE question_id=$1`, question.ID); err != nil {
			return fmt.Errorf("delete choices: %w", err)
		}
		return insertChoices(ctx, tx, &question)
	})
	if err != nil {
		return domain.Question{}, err
	}
	return question, nil
}

func (r *Registry) DeleteQuestion(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func insertChoices(ctx context.Context, tx pgx.Tx, question *domain.Question) error {
	choices := make([]domain.Choice, 0, len(question.Choices))
	for _, c := range question.Choices {
		c.QuestionID = question.ID
		if err := tx.QueryRow(ctx,
			`INSERT INTO choices (question_id, text, is_correct) VALUES ($1, $2, $3) RETURNING id`,
			c.QuestionID, c.Text, c.IsCorrect,
		).Scan(&c.ID); err != nil {
			return fmt.Errorf("insert choice: %w", err)
		}
		choices = append(choices, c)
	}
	question.Choices = choices
	return nil
}

func notFound(err, sentinel error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isViolation reports whether err is a Postgres error with the given SQLSTATE code and, when
// constraint is set, on that constraint.
func isViolation(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != code {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
