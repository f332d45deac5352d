package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrHostOnly        ErrCode = "HOST_ACCESS_ONLY"
	ErrParticipantOnly ErrCode = "PARTICIPANT_ACCESS_ONLY"
	ErrNotSessionHost  ErrCode = "NOT_SESSION_HOST"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidContent ErrCode = "INVALID_CONTENT"

	// ─── Sessions ──────────────────────────────────────────────────────
	ErrSessionNotFound     ErrCode = "SESSION_NOT_FOUND"
	ErrDuplicateCode       ErrCode = "DUPLICATE_CODE"
	ErrInvalidStatus       ErrCode = "INVALID_STATUS_TRANSITION"
	ErrSessionNotActive    ErrCode = "SESSION_NOT_ACTIVE"
	ErrParticipantNotFound ErrCode = "PARTICIPANT_NOT_FOUND"
	ErrInvalidTransition   ErrCode = "INVALID_TRANSITION"
	ErrChecksIncomplete    ErrCode = "CHECKS_INCOMPLETE"
	ErrVideoNotFinished    ErrCode = "VIDEO_NOT_FINISHED"
	ErrQuestionsIncomplete ErrCode = "QUESTIONS_INCOMPLETE"
	ErrWrongPhase          ErrCode = "WRONG_PHASE"
	ErrCheckNotFound       ErrCode = "CHECK_NOT_FOUND"
	ErrQuestionNotFound    ErrCode = "QUESTION_NOT_FOUND"
	ErrInvalidScrub        ErrCode = "INVALID_SCRUB"
	ErrInvalidDisplayName  ErrCode = "INVALID_DISPLAY_NAME"
	ErrNegativeScoreDelta  ErrCode = "NEGATIVE_SCORE_DELTA"

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
	case ErrHostOnly:
		return "This resource is restricted to session hosts."
	case ErrParticipantOnly:
		return "This resource is restricted to session participants."
	case ErrNotSessionHost:
		return "You are not the host of this session."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidContent:
		return "The session content is malformed."

	// ─── Sessions ──────────────────────────────────────────────────────
	case ErrSessionNotFound:
		return "Live session not found. It may have ended."
	case ErrDuplicateCode:
		return "Could not allocate a unique join code. Please try again."
	case ErrInvalidStatus:
		return "A session can only move from waiting to active, or end."
	case ErrSessionNotActive:
		return "The session has not started yet."
	case ErrParticipantNotFound:
		return "Participant not found. The session may have ended."
	case ErrInvalidTransition:
		return "That phase change is not allowed."
	case ErrChecksIncomplete:
		return "Answer every attention check before starting the quiz."
	case ErrVideoNotFinished:
		return "Finish the video before starting the quiz."
	case ErrQuestionsIncomplete:
		return "Answer every question before finishing."
	case ErrWrongPhase:
		return "That action is not available in your current phase."
	case ErrCheckNotFound:
		return "Attention check not found."
	case ErrQuestionNotFound:
		return "Question not found."
	case ErrInvalidScrub:
		return "A scrub report must move playback backwards."
	case ErrInvalidDisplayName:
		return "Display name must be between 1 and 40 characters."
	case ErrNegativeScoreDelta:
		return "Score can only increase."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
