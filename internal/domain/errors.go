package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session matches an id or PIN.
	ErrSessionNotFound = errors.New("session not found")
	// ErrParticipantNotFound is returned when a participant id is unknown.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question id is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrChoiceNotFound indicates a submitted choice id is invalid.
	ErrChoiceNotFound = errors.New("choice not found")
	// ErrDuplicateName is returned when a participant name is already taken within a session.
	ErrDuplicateName = errors.New("participant name already taken in session")
	// ErrNameExhausted is returned when no free suffixed name was found within the retry cap.
	ErrNameExhausted = errors.New("could not create unique participant name")
	// ErrPINTaken is returned by storage when a generated PIN collides with an existing session.
	ErrPINTaken = errors.New("session pin already in use")
	// ErrForbidden is returned when a user acts on data it does not own.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidToken is returned when a host token cannot be verified.
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidInput = errors.New("invalid input")
)

// IsNotFound reports whether err belongs to the not-found family.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrParticipantNotFound) ||
		errors.Is(err, ErrQuizNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrChoiceNotFound)
}
