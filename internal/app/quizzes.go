package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/logger"
)

const defaultTimeLimit = 30

// QuizService is the authoring side: quizzes, questions and choices owned by their creator.
// Whether a question has at least one correct choice is left to the author.
type QuizService struct {
	quizzes   QuizStore
	questions QuestionSource
	now       func() time.Time
	log       *logger.Logger
}

func NewQuizService(registry Registry, questions QuestionSource, log *logger.Logger) *QuizService {
	return &QuizService{
		quizzes:   registry,
		questions: questions,
		now:       time.Now,
		log:       log.With("component", "quizzes"),
	}
}

func (s *QuizService) Create(ctx context.Context, ownerID int64, title, description string) (domain.Quiz, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Quiz{}, fmt.Errorf("title required: %w", domain.ErrInvalidInput)
	}
	return s.quizzes.CreateQuiz(ctx, domain.Quiz{
		Title:       title,
		Description: description,
		OwnerID:     ownerID,
		CreatedAt:   s.now(),
	})
}

// Get returns the quiz with its questions, correctness included, to its owner only.
func (s *QuizService) Get(ctx context.Context, ownerID, id int64) (domain.Quiz, error) {
	quiz, err := s.quizzes.Quiz(ctx, id)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.OwnerID != ownerID {
		return domain.Quiz{}, domain.ErrForbidden
	}
	return quiz, nil
}

// List returns the quizzes owned by ownerID.
func (s *QuizService) List(ctx context.Context, ownerID int64) ([]domain.Quiz, error) {
	return s.quizzes.Quizzes(ctx, ownerID)
}

// Update renames a quiz and rewrites its description.
func (s *QuizService) Update(ctx context.Context, ownerID, id int64, title, description string) (domain.Quiz, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return domain.Quiz{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Quiz{}, fmt.Errorf("title required: %w", domain.ErrInvalidInput)
	}
	return s.quizzes.UpdateQuiz(ctx, domain.Quiz{ID: id, Title: title, Description: description})
}

// Delete removes a quiz with its questions and every session played from it.
func (s *QuizService) Delete(ctx context.Context, ownerID, id int64) error {
	quiz, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.quizzes.DeleteQuiz(ctx, id); err != nil {
		return err
	}
	for _, q := range quiz.Questions {
		s.invalidate(ctx, q.ID)
	}
	s.log.Info("quiz deleted", "quiz", id, "questions", len(quiz.Questions))
	return nil
}

// Questions lists a quiz's questions in play order, correctness included.
func (s *QuizService) Questions(ctx context.Context, ownerID, quizID int64) ([]domain.Question, error) {
	quiz, err := s.Get(ctx, ownerID, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.Questions == nil {
		return []domain.Question{}, nil
	}
	return quiz.Questions, nil
}

// AddQuestion appends a question with its choices to a quiz owned by ownerID.
func (s *QuizService) AddQuestion(ctx context.Context, ownerID, quizID int64, question domain.Question) (domain.Question, error) {
	quiz, err := s.quizzes.Quiz(ctx, quizID)
	if err != nil {
		return domain.Question{}, err
	}
	if quiz.OwnerID != ownerID {
		return domain.Question{}, domain.ErrForbidden
	}
	question.QuizID = quizID
	question.CreatedAt = s.now()
	if err := normalizeQuestion(&question); err != nil {
		return domain.Question{}, err
	}
	return s.quizzes.CreateQuestion(ctx, question)
}

// ReplaceQuestion overwrites a question's content wholesale; its choices are recreated.
func (s *QuizService) ReplaceQuestion(ctx context.Context, ownerID int64, question domain.Question) (domain.Question, error) {
	existing, err := s.quizzes.Question(ctx, question.ID)
	if err != nil {
		return domain.Question{}, err
	}
	quiz, err := s.quizzes.Quiz(ctx, existing.QuizID)
	if err != nil {
		return domain.Question{}, err
	}
	if quiz.OwnerID != ownerID {
		return domain.Question{}, domain.ErrForbidden
	}
	question.QuizID = existing.QuizID
	question.CreatedAt = existing.CreatedAt
	if err := normalizeQuestion(&question); err != nil {
		return domain.Question{}, err
	}
	updated, err := s.quizzes.ReplaceQuestion(ctx, question)
	if err != nil {
		return domain.Question{}, err
	}
	s.invalidate(ctx, updated.ID)
	return updated, nil
}

// DeleteQuestion removes a question together with its choices and answers.
func (s *QuizService) DeleteQuestion(ctx context.Context, ownerID, id int64) error {
	question, err := s.quizzes.Question(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.Get(ctx, ownerID, question.QuizID); err != nil {
		return err
	}
	if err := s.quizzes.DeleteQuestion(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *QuizService) invalidate(ctx context.Context, questionID int64) {
	if s.questions != nil {
		s.questions.Invalidate(ctx, questionID)
	}
}

func normalizeQuestion(q *domain.Question) error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return fmt.Errorf("question text required: %w", domain.ErrInvalidInput)
	}
	if q.TimeLimit <= 0 {
		q.TimeLimit = defaultTimeLimit
	}
	for i := range q.Choices {
		q.Choices[i].Text = strings.TrimSpace(q.Choices[i].Text)
		if q.Choices[i].Text == "" {
			return fmt.Errorf("choice %d text required: %w", i, domain.ErrInvalidInput)
		}
	}
	return nil
}
