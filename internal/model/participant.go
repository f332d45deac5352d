package model

import (
	"time"

	"github.com/google/uuid"
)

// Phase is a participant's position in the live session state machine.
type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseInquiry   Phase = "inquiry"
	PhaseVideo     Phase = "video"
	PhaseQuiz      Phase = "quiz"
	PhaseCompleted Phase = "completed"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseWaiting, PhaseInquiry, PhaseVideo, PhaseQuiz, PhaseCompleted:
		return true
	}
	return false
}

// Participant is one student's (or guest's) membership in a live session.
type Participant struct {
	ID                   uuid.UUID `json:"id"`
	SessionID            uuid.UUID `json:"session_id"`
	SessionCode          string    `json:"session_code"`
	UserID               *string   `json:"user_id"`
	DisplayName          string    `json:"display_name"`
	Score                int       `json:"score"`
	Phase                Phase     `json:"phase"`
	CurrentQuestionIndex int       `json:"current_question_index"`
	VideoPositionSeconds float64   `json:"video_position_seconds"`
	JoinedAt             time.Time `json:"joined_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// IsGuest reports whether the participant joined without an identity.
func (p *Participant) IsGuest() bool {
	return p.UserID == nil
}

// JoinLiveSessionRequest is the payload for joining a session by code.
type JoinLiveSessionRequest struct {
	Code        string `json:"code" binding:"required,joincode"`
	DisplayName string `json:"display_name" binding:"required,min=1,max=40"`
}

// UpdatePhaseRequest asks the engine to move the caller to a new phase.
// VideoPositionSeconds is required for the video → quiz transition.
type UpdatePhaseRequest struct {
	Phase                Phase    `json:"phase" binding:"required,phase"`
	VideoPositionSeconds *float64 `json:"video_position_seconds" binding:"omitempty,min=0"`
}

// SubmitCheckRequest answers the attention check with the given order.
type SubmitCheckRequest struct {
	Order  *int   `json:"order" binding:"required,min=0"`
	Choice string `json:"choice" binding:"required,choiceletter"`
}

// SubmitAnswerRequest answers one quiz question.
type SubmitAnswerRequest struct {
	QuestionID     string `json:"question_id" binding:"required,max=128"`
	SelectedChoice *int   `json:"selected_choice" binding:"required,min=0,max=3"`
}

// SaveProgressRequest autosaves the caller's playback position.
type SaveProgressRequest struct {
	PositionSeconds *float64 `json:"position_seconds" binding:"required,min=0"`
}

// ReportScrubRequest records a client-side anti-scrub snap-back.
type ReportScrubRequest struct {
	FromSeconds *float64 `json:"from_seconds" binding:"required,min=0"`
	ToSeconds   *float64 `json:"to_seconds" binding:"required,min=0"`
}
