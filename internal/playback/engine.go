// Package playback is the client half of the participant phase engine: it
// gates video playback on attention checks and snaps forward seeks back.
//
// The engine is trusted client logic, not a security control. The server
// never verifies playback; a modified client can bypass all of this.
package playback

import (
	"sort"
	"time"

	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/scoring"
)

const (
	// CheckWindowSeconds is how close playback must be to a check's timestamp to trigger it.
	CheckWindowSeconds = 1.0
	// ScrubToleranceSeconds is the largest forward jump accepted in one tick.
	ScrubToleranceSeconds = 1.5
	// EndGraceSeconds lets the quiz unlock slightly before the video's reported end.
	EndGraceSeconds = 2.0
	// FeedbackDelay is how long the check result stays on screen before playback resumes.
	FeedbackDelay = 2 * time.Second
)

// ActionKind tells the player what to do after a tick.
type ActionKind int

const (
	ActionContinue ActionKind = iota
	ActionHold
	ActionSeekBack
	ActionPauseForCheck
	ActionReadyForQuiz
)

func (k ActionKind) String() string {
	switch k {
	case ActionContinue:
		return "continue"
	case ActionHold:
		return "hold"
	case ActionSeekBack:
		return "seek_back"
	case ActionPauseForCheck:
		return "pause_for_check"
	case ActionReadyForQuiz:
		return "ready_for_quiz"
	}
	return "unknown"
}

// Action is the engine's verdict for one playback tick.
type Action struct {
	Kind ActionKind
	// SeekTo is set for ActionSeekBack.
	SeekTo float64
	// Check is set for ActionPauseForCheck.
	Check *model.CheckForParticipant
}

// Engine tracks one participant's progress through the video phase.
// It is not safe for concurrent use; a client drives it from one loop.
type Engine struct {
	checks    []model.CheckForParticipant
	duration  float64
	current   int
	completed map[int]bool
	lastKnown float64
	open      *model.CheckForParticipant
	resumeAt  time.Time
	score     int
}

// NewEngine copies and sorts checks by timestamp.
func NewEngine(checks []model.CheckForParticipant, durationSeconds float64) *Engine {
	sorted := make([]model.CheckForParticipant, len(checks))
	copy(sorted, checks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimestampSeconds < sorted[j].TimestampSeconds
	})
	return &Engine{
		checks:    sorted,
		duration:  durationSeconds,
		completed: make(map[int]bool, len(sorted)),
	}
}

// Restore seeds the engine from server state after a reload.
func (e *Engine) Restore(completedOrders []int, lastKnown float64) {
	for _, o := range completedOrders {
		e.completed[o] = true
	}
	if lastKnown > e.lastKnown {
		e.lastKnown = lastKnown
	}
	e.advance()
}

// Tick evaluates the playback position reported by the video device.
func (e *Engine) Tick(pos float64, now time.Time) Action {
	if e.open != nil {
		return Action{Kind: ActionHold}
	}
	if !e.resumeAt.IsZero() {
		if now.Before(e.resumeAt) {
			return Action{Kind: ActionHold}
		}
		e.resumeAt = time.Time{}
		e.advance()
	}

	if pos > e.lastKnown+ScrubToleranceSeconds {
		return Action{Kind: ActionSeekBack, SeekTo: e.lastKnown}
	}
	if pos > e.lastKnown {
		e.lastKnown = pos
	}

	e.advance()
	if e.current < len(e.checks) {
		c := e.checks[e.current]
		// Past-the-window positions still trigger so a coarse tick never skips a check.
		if pos >= c.TimestampSeconds-CheckWindowSeconds {
			e.open = &c
			return Action{Kind: ActionPauseForCheck, Check: &c}
		}
	}

	if e.AllChecksDone() && pos >= e.duration-EndGraceSeconds {
		return Action{Kind: ActionReadyForQuiz}
	}
	return Action{Kind: ActionContinue}
}

// Answer records the result for check order. It returns the award and
// whether it was scored; a check already completed scores nothing.
func (e *Engine) Answer(order int, correct bool, now time.Time) (int, bool) {
	if e.completed[order] || !e.known(order) {
		return 0, false
	}
	e.completed[order] = true
	award := scoring.AttentionCheckAward(correct)
	e.score += award

	if e.open != nil && e.open.Order == order {
		e.open = nil
		e.resumeAt = now.Add(FeedbackDelay)
	}
	return award, true
}

// Resume ends the feedback delay early if it has elapsed.
func (e *Engine) Resume(now time.Time) bool {
	if e.open != nil || e.resumeAt.IsZero() || now.Before(e.resumeAt) {
		return false
	}
	e.resumeAt = time.Time{}
	e.advance()
	return true
}

// OpenCheck returns the check currently blocking playback, if any.
func (e *Engine) OpenCheck() *model.CheckForParticipant {
	return e.open
}

// CurrentCheckIndex is the index of the next unanswered check in timestamp order.
func (e *Engine) CurrentCheckIndex() int { return e.current }

// Completed reports whether check order has been answered.
func (e *Engine) Completed(order int) bool { return e.completed[order] }

// ChecksCompleted returns how many checks have been answered.
func (e *Engine) ChecksCompleted() int { return len(e.completed) }

// AllChecksDone reports whether every check has been answered.
func (e *Engine) AllChecksDone() bool {
	for _, c := range e.checks {
		if !e.completed[c.Order] {
			return false
		}
	}
	return true
}

// LastKnownTime is the furthest playback position accepted so far.
func (e *Engine) LastKnownTime() float64 { return e.lastKnown }

// Score is the sum of check awards recorded by this engine.
func (e *Engine) Score() int { return e.score }

func (e *Engine) known(order int) bool {
	for _, c := range e.checks {
		if c.Order == order {
			return true
		}
	}
	return false
}

func (e *Engine) advance() {
	for e.current < len(e.checks) && e.completed[e.checks[e.current].Order] {
		e.current++
	}
}
