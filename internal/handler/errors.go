package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/response"
	"github.com/stemsi/livesession-backend/internal/service"
)

type errMapping struct {
	err    error
	status int
	code   response.ErrCode
}

// serviceErrors is checked in order; the first errors.Is match wins.
var serviceErrors = []errMapping{
	{service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
	{service.ErrParticipantNotFound, http.StatusNotFound, response.ErrParticipantNotFound},
	{service.ErrCheckNotFound, http.StatusNotFound, response.ErrCheckNotFound},
	{service.ErrQuestionNotFound, http.StatusNotFound, response.ErrQuestionNotFound},
	{service.ErrNotSessionHost, http.StatusForbidden, response.ErrNotSessionHost},
	{service.ErrDuplicateCode, http.StatusConflict, response.ErrDuplicateCode},
	{service.ErrInvalidStatusTransition, http.StatusConflict, response.ErrInvalidStatus},
	{service.ErrSessionNotActive, http.StatusConflict, response.ErrSessionNotActive},
	{service.ErrInvalidTransition, http.StatusConflict, response.ErrInvalidTransition},
	{service.ErrChecksIncomplete, http.StatusConflict, response.ErrChecksIncomplete},
	{service.ErrVideoNotFinished, http.StatusConflict, response.ErrVideoNotFinished},
	{service.ErrQuestionsIncomplete, http.StatusConflict, response.ErrQuestionsIncomplete},
	{service.ErrWrongPhase, http.StatusConflict, response.ErrWrongPhase},
	{service.ErrInvalidContent, http.StatusUnprocessableEntity, response.ErrInvalidContent},
	{service.ErrInvalidDisplayName, http.StatusBadRequest, response.ErrInvalidDisplayName},
	{service.ErrInvalidScrub, http.StatusBadRequest, response.ErrInvalidScrub},
	{service.ErrNegativeScoreDelta, http.StatusBadRequest, response.ErrNegativeScoreDelta},
}

// classify returns the HTTP status and code for a service error. ok is false
// for errors with no client-facing meaning.
func classify(err error) (status int, code response.ErrCode, ok bool) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			return m.status, m.code, true
		}
	}
	return http.StatusInternalServerError, response.ErrInternal, false
}

// failService writes the envelope for err. Unknown errors are logged and
// reported as INTERNAL_ERROR without leaking their text.
func failService(c *gin.Context, log zerolog.Logger, err error) {
	status, code, ok := classify(err)
	if !ok {
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Msg("Unhandled service error")
		response.Fail(c, status, code)
		return
	}
	if code == response.ErrInvalidContent {
		response.FailWithDetail(c, status, code, err.Error())
		return
	}
	response.Fail(c, status, code)
}

// isTerminal reports whether err means the caller's session or participant
// no longer exists. Push streams close on terminal errors.
func isTerminal(err error) bool {
	return errors.Is(err, service.ErrSessionNotFound) || errors.Is(err, service.ErrParticipantNotFound)
}
