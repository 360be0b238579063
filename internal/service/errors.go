package service

import (
	"errors"
)

// ErrorKind classifies domain errors so transports can map them uniformly.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindConflict     ErrorKind = "conflict"
	KindNotFound     ErrorKind = "not_found"
	KindUnauthorized ErrorKind = "unauthorized"
	KindInternal     ErrorKind = "internal"
)

// Error is a domain error carrying a kind and a human-readable message.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Domain errors. Compare with errors.Is.
var (
	ErrExamNotFound         = newError(KindNotFound, "exam not found")
	ErrExamNotActive        = newError(KindConflict, "exam is not active")
	ErrExamNotYetOpen       = newError(KindConflict, "exam has not opened yet")
	ErrExamClosed           = newError(KindConflict, "exam window has closed")
	ErrInvalidAccessCode    = newError(KindValidation, "invalid access code")
	ErrAlreadyMaxAttempts   = newError(KindConflict, "maximum number of attempts reached")
	ErrUnauthorized         = newError(KindUnauthorized, "attempt belongs to another user")
	ErrResumeNotAllowed     = newError(KindConflict, "exam does not allow resuming")
	ErrAttemptExpired       = newError(KindConflict, "attempt time has expired")
	ErrAttemptNotActive     = newError(KindConflict, "attempt is not in progress")
	ErrAttemptNotFound      = newError(KindNotFound, "attempt not found")
	ErrAlreadySubmitted     = newError(KindConflict, "attempt has already been submitted")
	ErrNotTerminable        = newError(KindConflict, "only in-progress attempts can be terminated")
	ErrQuestionNotInAttempt = newError(KindNotFound, "question is not part of this attempt")
	ErrInvalidAnswerPayload = newError(KindValidation, "answer does not fit the question type")
	ErrInvalidProgress      = newError(KindValidation, "question index is out of range")
	ErrAnswerNotFound       = newError(KindNotFound, "answer not found")
	ErrNotSubjective        = newError(KindValidation, "only essay and file-upload answers are graded manually")
	ErrExceedsMaxMarks      = newError(KindValidation, "awarded marks exceed the question's marks")
	ErrAttemptNotFinished   = newError(KindConflict, "attempt has not finished yet")
	ErrGradingPending       = newError(KindConflict, "some answers are still waiting for manual grading")
	ErrResultNotFound       = newError(KindNotFound, "result not found")
	ErrResultNotPublished   = newError(KindNotFound, "result has not been published")
	ErrSessionNotFound      = newError(KindNotFound, "proctoring session not found")
)

// KindOf returns the kind of a domain error, or KindInternal for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
