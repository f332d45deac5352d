package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/middleware"
	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/response"
	"github.com/stemsi/livesession-backend/internal/service"
	"github.com/stemsi/livesession-backend/internal/validator"
)

// ParticipantHandler serves the student side of live sessions.
type ParticipantHandler struct {
	sessions     *service.LiveSessionService
	participants *service.ParticipantService
	progress     *service.ProgressService
	auth         *service.AuthService
	pollInterval time.Duration
	log          zerolog.Logger
}

// NewParticipantHandler creates a new ParticipantHandler.
func NewParticipantHandler(
	sessions *service.LiveSessionService,
	participants *service.ParticipantService,
	progress *service.ProgressService,
	auth *service.AuthService,
	pollInterval time.Duration,
	log zerolog.Logger,
) *ParticipantHandler {
	return &ParticipantHandler{
		sessions:     sessions,
		participants: participants,
		progress:     progress,
		auth:         auth,
		pollInterval: pollInterval,
		log:          log.With().Str("component", "participant_handler").Logger(),
	}
}

// GetSessionView godoc
// GET /api/v1/live/join/:code
// Returns the session as students see it, without answer keys.
func (h *ParticipantHandler) GetSessionView(c *gin.Context) {
	session, err := h.sessions.FindByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session.View()})
}

// Join godoc
// POST /api/v1/live/join
// Joins a session as a signed-in student or a guest. A student who already
// joined gets the existing participant back with 200 and already_joined.
func (h *ParticipantHandler) Join(c *gin.Context) {
	var req model.JoinLiveSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	var userID *string
	if claims := middleware.GetClaims(c); claims != nil {
		id := claims.UserID
		userID = &id
	}

	ctx := c.Request.Context()
	p, _, err := h.participants.Join(ctx, req.Code, req.DisplayName, userID)
	alreadyJoined := errors.Is(err, service.ErrAlreadyJoined)
	if err != nil && !alreadyJoined {
		failService(c, h.log, err)
		return
	}

	session, err := h.sessions.FindByCode(ctx, p.SessionCode)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	token, err := h.auth.GenerateParticipantToken(p)
	if err != nil {
		h.log.Error().Err(err).Str("participant_id", p.ID.String()).Msg("Failed to sign participant token")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	status := http.StatusCreated
	if alreadyJoined {
		status = http.StatusOK
	}
	response.Success(c, status, gin.H{
		"participant":      p,
		"token":            token,
		"already_joined":   alreadyJoined,
		"session":          session.View(),
		"poll_interval_ms": h.pollInterval.Milliseconds(),
	})
}

// Me godoc
// GET /api/v1/live/me
// Returns the caller's participant row, rank and session status.
func (h *ParticipantHandler) Me(c *gin.Context) {
	id, ok := middleware.GetParticipantID(c)
	if !ok {
		response.Fail(c, http.StatusForbidden, response.ErrParticipantOnly)
		return
	}

	state, err := h.participants.Me(c.Request.Context(), id)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// UpdatePhase godoc
// PATCH /api/v1/live/me/phase
// Moves the caller to the next phase if the edge's gate is satisfied.
func (h *ParticipantHandler) UpdatePhase(c *gin.Context) {
	id, ok := middleware.GetParticipantID(c)
	if !ok {
		response.Fail(c, http.StatusForbidden, response.ErrParticipantOnly)
		return
	}

	var req model.UpdatePhaseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	p, err := h.participants.UpdatePhase(c.Request.Context(), id, &req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"participant": p})
}

// SubmitCheck godoc
// POST /api/v1/live/me/checks
// Answers an attention check. Only the first answer per check scores.
func (h *ParticipantHandler) SubmitCheck(c *gin.Context) {
	id, ok := middleware.GetParticipantID(c)
	if !ok {
		response.Fail(c, http.StatusForbidden, response.ErrParticipantOnly)
		return
	}

	var req model.SubmitCheckRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.participants.SubmitCheck(c.Request.Context(), id, *req.Order, req.Choice)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// SubmitAnswer godoc
// POST /api/v1/live/me/answers
// Answers a quiz question. The first answer per question wins.
func (h *ParticipantHandler) SubmitAnswer(c *gin.Context) {
	id, ok := middleware.GetParticipantID(c)
	if !ok {
		response.Fail(c, http.StatusForbidden, response.ErrParticipantOnly)
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.participants.SubmitAnswer(c.Request.Context(), id, req.QuestionID, *req.SelectedChoice)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// SaveProgress godoc
// PUT /api/v1/live/me/progress
// Autosaves the caller's playback position.
func (h *ParticipantHandler) SaveProgress(c *gin.Context) {
	id, ok := middleware.GetParticipantID(c)
	if !ok {
		response.Fail(c, http.StatusForbidden, response.ErrParticipantOnly)
		return
	}

	var req model.SaveProgressRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	pos, err := h.progress.SaveProgress(c.Request.Context(), id, *req.PositionSeconds)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"position_seconds": pos})
}

// ReportScrub godoc
// POST /api/v1/live/me/scrubs
// Logs a forward seek that the player snapped back.
func (h *ParticipantHandler) ReportScrub(c *gin.Context) {
	id, ok := middleware.GetParticipantID(c)
	if !ok {
		response.Fail(c, http.StatusForbidden, response.ErrParticipantOnly)
		return
	}

	var req model.ReportScrubRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.progress.ReportScrub(c.Request.Context(), id, *req.FromSeconds, *req.ToSeconds); err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"recorded": true})
}
