package service

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrSessionNotFound         = errors.New("live session not found")
	ErrParticipantNotFound     = errors.New("participant not found")
	ErrAlreadyJoined           = errors.New("user already joined this session")
	ErrDuplicateCode           = errors.New("join code already in use")
	ErrNotSessionHost          = errors.New("caller is not the host of this session")
	ErrInvalidStatusTransition = errors.New("session status can only move forward")
	ErrInvalidTransition       = errors.New("illegal phase transition")
	ErrSessionNotActive        = errors.New("session is not active yet")
	ErrChecksIncomplete        = errors.New("attention checks not completed")
	ErrVideoNotFinished        = errors.New("video playback has not reached the end")
	ErrQuestionsIncomplete     = errors.New("not every question has been answered")
	ErrWrongPhase              = errors.New("action not allowed in the current phase")
	ErrCheckNotFound           = errors.New("attention check not found")
	ErrQuestionNotFound        = errors.New("question not found")
	ErrInvalidContent          = errors.New("invalid session content")
	ErrNegativeScoreDelta      = errors.New("score delta must not be negative")
)

// DuplicateCodeError is returned when every join code attempt collided.
type DuplicateCodeError struct {
	Attempts int
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("join code still colliding after %d attempts", e.Attempts)
}

// Is lets errors.Is(err, ErrDuplicateCode) match.
func (e *DuplicateCodeError) Is(target error) bool {
	return target == ErrDuplicateCode
}

// contentError wraps ErrInvalidContent with the offending detail.
func contentError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidContent, fmt.Sprintf(format, args...))
}
