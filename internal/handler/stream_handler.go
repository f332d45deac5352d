package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/middleware"
	"github.com/stemsi/livesession-backend/internal/response"
	"github.com/stemsi/livesession-backend/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the stream loop
)

// StreamHandler pushes the teacher dashboard over Server-Sent Events.
type StreamHandler struct {
	sessions     *service.LiveSessionService
	monitor      *service.MonitorService
	events       *service.EventPublisher
	pollInterval time.Duration
	log          zerolog.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(
	sessions *service.LiveSessionService,
	monitor *service.MonitorService,
	events *service.EventPublisher,
	pollInterval time.Duration,
	log zerolog.Logger,
) *StreamHandler {
	return &StreamHandler{
		sessions:     sessions,
		monitor:      monitor,
		events:       events,
		pollInterval: pollInterval,
		log:          log.With().Str("component", "stream_handler").Logger(),
	}
}

// StreamSession godoc
// GET /api/v1/live/sessions/:code/stream
// Sends a dashboard snapshot, then forwards session events and re-sends the
// snapshot every poll interval. The stream ends with an "ended" event once
// the session is gone.
func (h *StreamHandler) StreamSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	reqCtx := c.Request.Context()
	session, err := h.sessions.Owned(reqCtx, claims.UserID, c.Param("code"))
	if err != nil {
		failService(c, h.log, err)
		return
	}
	code := session.Code

	// Subscribe before the first snapshot so no change slips between them.
	pubsub := h.events.Subscribe(reqCtx, code)
	defer pubsub.Close()
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	if !h.sendSnapshot(c, reqCtx, claims.UserID, code) {
		return
	}

	refreshTicker := time.NewTicker(h.pollInterval)
	defer refreshTicker.Stop()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	streamLog := h.log.With().Str("code", code).Str("host_id", claims.UserID).Logger()
	streamLog.Info().Msg("Host attached to session stream")

	for {
		select {
		case <-reqCtx.Done():
			streamLog.Info().Msg("Host detached from session stream")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev service.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				streamLog.Warn().Err(err).Msg("Dropping malformed event")
				continue
			}
			if ev.Type == service.EventSessionEnded {
				h.sendEnded(c, "session_ended")
				return
			}
			c.SSEvent("change", ev)
			c.Writer.Flush()

		case <-refreshTicker.C:
			if !h.sendSnapshot(c, reqCtx, claims.UserID, code) {
				return
			}

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte(": ping\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendSnapshot writes one dashboard event. It returns false once the
// session no longer exists; transient failures skip the tick.
func (h *StreamHandler) sendSnapshot(c *gin.Context, parentCtx context.Context, hostID, code string) bool {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	dash, err := h.monitor.Dashboard(ctx, hostID, code)
	if err != nil {
		if isTerminal(err) {
			h.sendEnded(c, "session_not_found")
			return false
		}
		h.log.Warn().Err(err).Str("code", code).Msg("Failed to build dashboard snapshot")
		return true
	}

	c.SSEvent("snapshot", dash)
	c.Writer.Flush()
	return true
}

func (h *StreamHandler) sendEnded(c *gin.Context, reason string) {
	c.SSEvent("ended", gin.H{"reason": reason})
	c.Writer.Flush()
}
