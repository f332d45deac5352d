package model

import (
	"time"

	"github.com/google/uuid"
)

// ProgressUpdate is a queued playback autosave.
type ProgressUpdate struct {
	ParticipantID   uuid.UUID `json:"participant_id"`
	SessionCode     string    `json:"session_code"`
	PositionSeconds float64   `json:"position_seconds"`
	At              time.Time `json:"at"`
}
