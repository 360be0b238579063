package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrPermissionDenied  ErrCode = "PERMISSION_DENIED"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrStaffAccessOnly   ErrCode = "STAFF_ACCESS_ONLY"
	ErrNotAttemptOwner   ErrCode = "NOT_ATTEMPT_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam window ───────────────────────────────────────────────────
	ErrExamNotFound       ErrCode = "EXAM_NOT_FOUND"
	ErrExamNotActive      ErrCode = "EXAM_NOT_ACTIVE"
	ErrExamNotYetOpen     ErrCode = "EXAM_NOT_YET_OPEN"
	ErrExamClosed         ErrCode = "EXAM_CLOSED"
	ErrInvalidAccessCode  ErrCode = "INVALID_ACCESS_CODE"
	ErrAlreadyMaxAttempts ErrCode = "ALREADY_MAX_ATTEMPTS"
	ErrResumeNotAllowed   ErrCode = "RESUME_NOT_ALLOWED"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrAttemptNotFound      ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptExpired       ErrCode = "ATTEMPT_EXPIRED"
	ErrAttemptNotActive     ErrCode = "ATTEMPT_NOT_ACTIVE"
	ErrAlreadySubmitted     ErrCode = "ALREADY_SUBMITTED"
	ErrNotTerminable        ErrCode = "NOT_TERMINABLE"
	ErrQuestionNotInAttempt ErrCode = "QUESTION_NOT_IN_ATTEMPT"
	ErrInvalidAnswer        ErrCode = "INVALID_ANSWER"
	ErrInvalidProgress      ErrCode = "INVALID_PROGRESS"

	// ─── Grading & results ─────────────────────────────────────────────
	ErrAnswerNotFound     ErrCode = "ANSWER_NOT_FOUND"
	ErrNotSubjective      ErrCode = "NOT_SUBJECTIVE"
	ErrExceedsMaxMarks    ErrCode = "EXCEEDS_MAX_MARKS"
	ErrAttemptNotFinished ErrCode = "ATTEMPT_NOT_FINISHED"
	ErrGradingPending     ErrCode = "GRADING_PENDING"
	ErrResultNotFound     ErrCode = "RESULT_NOT_FOUND"
	ErrResultNotPublished ErrCode = "RESULT_NOT_PUBLISHED"

	// ─── Proctoring ────────────────────────────────────────────────────
	ErrSessionNotFound ErrCode = "SESSION_NOT_FOUND"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You are not allowed to access this resource."
	case ErrPermissionDenied:
		return "Permission denied."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrStaffAccessOnly:
		return "This resource is restricted to staff."
	case ErrNotAttemptOwner:
		return "This attempt belongs to another user."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Exam window ───────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Exam not found."
	case ErrExamNotActive:
		return "This exam is not active."
	case ErrExamNotYetOpen:
		return "This exam has not opened yet."
	case ErrExamClosed:
		return "The exam window has closed."
	case ErrInvalidAccessCode:
		return "Invalid exam access code."
	case ErrAlreadyMaxAttempts:
		return "You have used all attempts for this exam."
	case ErrResumeNotAllowed:
		return "This exam does not allow pausing or resuming."

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	case ErrAttemptNotFound:
		return "Attempt not found."
	case ErrAttemptExpired:
		return "Time for this attempt has run out. It has been submitted."
	case ErrAttemptNotActive:
		return "This attempt is not in progress."
	case ErrAlreadySubmitted:
		return "This attempt has already been submitted."
	case ErrNotTerminable:
		return "Only in-progress attempts can be terminated."
	case ErrQuestionNotInAttempt:
		return "This question is not part of the attempt."
	case ErrInvalidAnswer:
		return "The answer does not fit the question type."
	case ErrInvalidProgress:
		return "Question index is out of range."

	// ─── Grading & results ─────────────────────────────────────────────
	case ErrAnswerNotFound:
		return "Answer not found."
	case ErrNotSubjective:
		return "Only essay and file-upload answers are graded manually."
	case ErrExceedsMaxMarks:
		return "Awarded marks exceed the question's marks."
	case ErrAttemptNotFinished:
		return "This attempt has not finished yet."
	case ErrGradingPending:
		return "Some answers are still waiting for manual grading."
	case ErrResultNotFound:
		return "Result not found."
	case ErrResultNotPublished:
		return "This result has not been published yet."

	// ─── Proctoring ────────────────────────────────────────────────────
	case ErrSessionNotFound:
		return "Proctoring session not found."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
