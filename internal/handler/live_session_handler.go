package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/middleware"
	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/response"
	"github.com/stemsi/livesession-backend/internal/scoring"
	"github.com/stemsi/livesession-backend/internal/service"
	"github.com/stemsi/livesession-backend/internal/validator"
)

// LiveSessionHandler serves the host side of live sessions.
type LiveSessionHandler struct {
	sessions     *service.LiveSessionService
	participants *service.ParticipantService
	monitor      *service.MonitorService
	pollInterval time.Duration
	log          zerolog.Logger
}

// NewLiveSessionHandler creates a new LiveSessionHandler.
func NewLiveSessionHandler(
	sessions *service.LiveSessionService,
	participants *service.ParticipantService,
	monitor *service.MonitorService,
	pollInterval time.Duration,
	log zerolog.Logger,
) *LiveSessionHandler {
	return &LiveSessionHandler{
		sessions:     sessions,
		participants: participants,
		monitor:      monitor,
		pollInterval: pollInterval,
		log:          log.With().Str("component", "live_session_handler").Logger(),
	}
}

// CreateSession godoc
// POST /api/v1/live/sessions
// Hosts a new live session from a pre-generated content bundle.
func (h *LiveSessionHandler) CreateSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateLiveSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessions.CreateSession(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"session":          session,
		"poll_interval_ms": h.pollInterval.Milliseconds(),
	})
}

// ListSessions godoc
// GET /api/v1/live/sessions
// Lists the caller's live sessions, newest first.
func (h *LiveSessionHandler) ListSessions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessions, err := h.sessions.ListByHost(c.Request.Context(), claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	if sessions == nil {
		sessions = []model.LiveSession{}
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// GetSession godoc
// GET /api/v1/live/sessions/:code
// Returns the full session, answer keys included.
func (h *LiveSessionHandler) GetSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	session, err := h.sessions.Owned(c.Request.Context(), claims.UserID, c.Param("code"))
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// UpdateStatus godoc
// PATCH /api/v1/live/sessions/:code/status
// Moves a session forward. "ended" deletes it.
func (h *LiveSessionHandler) UpdateStatus(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.UpdateLiveSessionStatusRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessions.SetStatus(c.Request.Context(), claims.UserID, c.Param("code"), req.Status)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// EndSession godoc
// DELETE /api/v1/live/sessions/:code
// Ends the session and removes every participant, response and log row.
func (h *LiveSessionHandler) EndSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.sessions.EndSession(c.Request.Context(), claims.UserID, c.Param("code")); err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"ended": true})
}

// ListParticipants godoc
// GET /api/v1/live/sessions/:code/participants
// Returns the leaderboard. Hosts also get the raw participant rows;
// participants may only read their own session.
func (h *LiveSessionHandler) ListParticipants(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	ctx := c.Request.Context()
	code := service.CanonicalCode(c.Param("code"))

	switch claims.TokenType {
	case service.TokenTypeParticipant:
		if claims.SessionCode != code {
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}
	case service.TokenTypeHost:
		session, err := h.sessions.Summary(ctx, code)
		if err != nil {
			failService(c, h.log, err)
			return
		}
		if session.HostID != claims.UserID {
			response.Fail(c, http.StatusForbidden, response.ErrNotSessionHost)
			return
		}
	default:
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	participants, err := h.participants.ListBySessionCode(ctx, code)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	body := gin.H{
		"total":       len(participants),
		"leaderboard": scoring.Leaderboard(participants),
	}
	if claims.TokenType == service.TokenTypeHost {
		body["participants"] = participants
	}
	response.Success(c, http.StatusOK, body)
}

// ListResponses godoc
// GET /api/v1/live/sessions/:code/responses
// Returns the session's quiz response log, oldest first.
func (h *LiveSessionHandler) ListResponses(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	responses, err := h.participants.ListResponses(c.Request.Context(), claims.UserID, c.Param("code"))
	if err != nil {
		failService(c, h.log, err)
		return
	}
	if responses == nil {
		responses = []model.Response{}
	}

	response.Success(c, http.StatusOK, gin.H{"responses": responses})
}

// GetDashboard godoc
// GET /api/v1/live/sessions/:code/dashboard
// One-shot teacher poll: leaderboard, phase counts, accuracy and progress.
func (h *LiveSessionHandler) GetDashboard(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	dash, err := h.monitor.Dashboard(c.Request.Context(), claims.UserID, c.Param("code"))
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"dashboard": dash})
}
