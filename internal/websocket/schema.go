package websocket

import (
	"github.com/stemsi/livesession-backend/internal/scoring"
	"github.com/stemsi/livesession-backend/internal/service"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing     Action = "ping"
	ActionProgress Action = "progress"
	ActionScrub    Action = "scrub"
	ActionRefresh  Action = "refresh"
)

// RequestPayload is every client message. Fields unused by an action are
// left empty.
type RequestPayload struct {
	Action          Action   `json:"action"`
	PositionSeconds *float64 `json:"position_seconds,omitempty"`
	FromSeconds     *float64 `json:"from_seconds,omitempty"`
	ToSeconds       *float64 `json:"to_seconds,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError         Event = "error"
	EventSnapshot      Event = "snapshot"
	EventChange        Event = "change"
	EventProgressSaved Event = "progress_saved"
	EventScrubRecorded Event = "scrub_recorded"
	EventPong          Event = "pong"
	EventEnded         Event = "ended"
)

// SnapshotResponse is the participant's full state plus the room leaderboard.
type SnapshotResponse struct {
	Event       Event                     `json:"event"`
	State       *service.ParticipantState `json:"state"`
	Leaderboard []scoring.Standing        `json:"leaderboard"`
}

// ChangeResponse forwards a session event as a hint to refresh.
type ChangeResponse struct {
	Event  Event         `json:"event"`
	Change service.Event `json:"change"`
}

type ProgressSavedResponse struct {
	Event           Event   `json:"event"`
	PositionSeconds float64 `json:"position_seconds"`
}

type ScrubRecordedResponse struct {
	Event Event `json:"event"`
}

// EndedResponse is the last message before the server closes the socket.
type EndedResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
