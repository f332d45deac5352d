package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/middleware"
	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/response"
	"github.com/stemsi/livesession-backend/internal/scoring"
	"github.com/stemsi/livesession-backend/internal/service"
	ws "github.com/stemsi/livesession-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler pushes a participant's own state over a WebSocket and accepts
// playback autosaves and scrub reports on the same socket.
type WSHandler struct {
	participants *service.ParticipantService
	progress     *service.ProgressService
	events       *service.EventPublisher
	pollInterval time.Duration
	log          zerolog.Logger
	upgrader     websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	participants *service.ParticipantService,
	progress *service.ProgressService,
	events *service.EventPublisher,
	pollInterval time.Duration,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		participants: participants,
		progress:     progress,
		events:       events,
		pollInterval: pollInterval,
		log:          log.With().Str("component", "ws_handler").Logger(),
		upgrader:     buildUpgrader(allowedOrigins),
	}
}

// ParticipantStream godoc
// WS /ws/v1/live/me
// Upgrades to WebSocket. The server sends a snapshot on connect, on every
// session event and every poll interval, then "ended" and a close frame
// once the session or participant is gone.
func (h *WSHandler) ParticipantStream(c *gin.Context) {
	participantID, ok := middleware.GetParticipantID(c)
	if !ok {
		response.Fail(c, http.StatusForbidden, response.ErrParticipantOnly)
		return
	}

	// Reject stale tokens with a plain 404 before upgrading.
	p, err := h.participants.Get(c.Request.Context(), participantID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)

	wsLog := h.log.With().
		Str("participant_id", participantID.String()).
		Str("code", p.SessionCode).
		Logger()
	wsLog.Info().Msg("Participant connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := h.events.Subscribe(ctx, p.SessionCode)
	defer pubsub.Close()

	go h.push(ctx, conn, pubsub.Channel(), participantID, wsLog)

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if !ws.IsNormalClose(err) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		case ws.ActionProgress:
			h.handleProgress(ctx, conn, participantID, &msg)
		case ws.ActionScrub:
			h.handleScrub(ctx, conn, participantID, &msg)
		case ws.ActionRefresh:
			if !h.sendSnapshot(ctx, conn, participantID) {
				conn.Close(websocket.CloseNormalClosure, "ended")
			}
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		}
	}
	conn.Close(websocket.CloseNormalClosure, "")
}

// push owns the server-initiated side of the socket until ctx is cancelled
// or the participant is gone.
func (h *WSHandler) push(ctx context.Context, conn *ws.Conn, events <-chan *redis.Message, participantID uuid.UUID, wsLog zerolog.Logger) {
	if !h.sendSnapshot(ctx, conn, participantID) {
		conn.Close(websocket.CloseNormalClosure, "ended")
		return
	}

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-events:
			if !ok {
				return
			}
			var ev service.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				wsLog.Warn().Err(err).Msg("Dropping malformed event")
				continue
			}
			if ev.Type == service.EventSessionEnded {
				conn.WriteTyped(ws.EndedResponse{Event: ws.EventEnded, Reason: "session_ended"})
				conn.Close(websocket.CloseNormalClosure, "ended")
				return
			}
			if err := conn.WriteTyped(ws.ChangeResponse{Event: ws.EventChange, Change: ev}); err != nil {
				return
			}

		case <-ticker.C:
			if !h.sendSnapshot(ctx, conn, participantID) {
				conn.Close(websocket.CloseNormalClosure, "ended")
				return
			}
		}
	}
}

// sendSnapshot writes the participant's state. It returns false when the
// participant or its session is gone, after sending "ended".
func (h *WSHandler) sendSnapshot(ctx context.Context, conn *ws.Conn, participantID uuid.UUID) bool {
	fetchCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	state, err := h.participants.Me(fetchCtx, participantID)
	if err == nil {
		var participants []model.Participant
		participants, err = h.participants.ListBySessionCode(fetchCtx, state.Participant.SessionCode)
		if err == nil {
			return conn.WriteTyped(ws.SnapshotResponse{
				Event:       ws.EventSnapshot,
				State:       state,
				Leaderboard: scoring.Leaderboard(participants),
			}) == nil
		}
	}

	if isTerminal(err) {
		conn.WriteTyped(ws.EndedResponse{Event: ws.EventEnded, Reason: "not_found"})
		return false
	}
	h.log.Warn().Err(err).Str("participant_id", participantID.String()).Msg("Failed to build snapshot")
	return true
}

func (h *WSHandler) handleProgress(ctx context.Context, conn *ws.Conn, participantID uuid.UUID, msg *ws.RequestPayload) {
	if msg.PositionSeconds == nil || *msg.PositionSeconds < 0 {
		conn.WriteError(string(response.ErrValidation), "position_seconds must be a non-negative number")
		return
	}
	pos, err := h.progress.SaveProgress(ctx, participantID, *msg.PositionSeconds)
	if err != nil {
		h.writeServiceError(conn, err)
		return
	}
	conn.WriteTyped(ws.ProgressSavedResponse{Event: ws.EventProgressSaved, PositionSeconds: pos})
}

func (h *WSHandler) handleScrub(ctx context.Context, conn *ws.Conn, participantID uuid.UUID, msg *ws.RequestPayload) {
	if msg.FromSeconds == nil || msg.ToSeconds == nil {
		conn.WriteError(string(response.ErrValidation), "from_seconds and to_seconds are required")
		return
	}
	if err := h.progress.ReportScrub(ctx, participantID, *msg.FromSeconds, *msg.ToSeconds); err != nil {
		h.writeServiceError(conn, err)
		return
	}
	conn.WriteTyped(ws.ScrubRecordedResponse{Event: ws.EventScrubRecorded})
}

func (h *WSHandler) writeServiceError(conn *ws.Conn, err error) {
	_, code, ok := classify(err)
	if !ok {
		h.log.Error().Err(err).Msg("Unhandled service error on socket")
	}
	conn.WriteError(string(code), response.GetMessage(code))
}
