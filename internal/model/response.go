package model

import (
	"time"

	"github.com/google/uuid"
)

// Response is one logged quiz answer. At most one exists per
// (participant, question); the first answer wins.
type Response struct {
	ID             uuid.UUID `json:"id"`
	SessionID      uuid.UUID `json:"session_id"`
	SessionCode    string    `json:"session_code"`
	ParticipantID  uuid.UUID `json:"participant_id"`
	QuestionID     string    `json:"question_id"`
	SelectedChoice int       `json:"selected_choice"`
	IsCorrect      bool      `json:"is_correct"`
	CreatedAt      time.Time `json:"created_at"`
}

// CheckCompletion records that a participant answered an attention check.
type CheckCompletion struct {
	ParticipantID  uuid.UUID `json:"participant_id"`
	SessionID      uuid.UUID `json:"session_id"`
	CheckOrder     int       `json:"check_order"`
	SelectedLetter string    `json:"selected_letter"`
	IsCorrect      bool      `json:"is_correct"`
	Awarded        int       `json:"awarded"`
	CreatedAt      time.Time `json:"created_at"`
}

// ScrubViolation is a forward seek the client snapped back.
type ScrubViolation struct {
	ID            int64     `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	FromSeconds   float64   `json:"from_seconds"`
	ToSeconds     float64   `json:"to_seconds"`
	RecordedAt    time.Time `json:"recorded_at"`
}
