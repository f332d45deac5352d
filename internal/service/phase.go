package service

import (
	"fmt"

	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/playback"
)

// TransitionGuard is the evidence the engine needs to allow a transition.
type TransitionGuard struct {
	SessionStatus model.LiveSessionStatus

	ChecksCompleted int
	ChecksTotal     int

	// VideoPositionSeconds is client-reported; nil means not supplied.
	VideoPositionSeconds *float64
	VideoDurationSeconds float64

	QuestionsAnswered int
	QuestionsTotal    int
}

// next lists the legal forward edges of the phase DAG.
var next = map[model.Phase][]model.Phase{
	model.PhaseWaiting: {model.PhaseInquiry},
	// Finishing the inquiry and skipping it are the same edge.
	model.PhaseInquiry: {model.PhaseVideo},
	model.PhaseVideo:   {model.PhaseQuiz},
	model.PhaseQuiz:    {model.PhaseCompleted},
}

// CanTransition reports whether to is a direct successor of from.
func CanTransition(from, to model.Phase) bool {
	for _, p := range next[from] {
		if p == to {
			return true
		}
	}
	return false
}

// ValidateTransition applies the DAG and the per-edge gates. A request for
// the current phase is not an error; callers treat it as a no-op.
func ValidateTransition(from, to model.Phase, g TransitionGuard) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidTransition, to)
	}
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}

	switch to {
	case model.PhaseInquiry:
		if g.SessionStatus != model.LiveSessionStatusActive {
			return ErrSessionNotActive
		}
	case model.PhaseQuiz:
		if g.ChecksCompleted < g.ChecksTotal {
			return fmt.Errorf("%w: %d of %d", ErrChecksIncomplete, g.ChecksCompleted, g.ChecksTotal)
		}
		if g.VideoPositionSeconds == nil || *g.VideoPositionSeconds < g.VideoDurationSeconds-playback.EndGraceSeconds {
			return ErrVideoNotFinished
		}
	case model.PhaseCompleted:
		if g.QuestionsAnswered < g.QuestionsTotal {
			return fmt.Errorf("%w: %d of %d", ErrQuestionsIncomplete, g.QuestionsAnswered, g.QuestionsTotal)
		}
	}
	return nil
}
