package liveclient

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/playback"
	"github.com/stemsi/livesession-backend/internal/response"
)

// Chooser picks a choice index for a prompt.
type Chooser func(prompt string, choices []string) int

// RandomChooser picks uniformly.
func RandomChooser(_ string, choices []string) int {
	if len(choices) == 0 {
		return 0
	}
	return rand.IntN(len(choices))
}

// RunResult summarizes one simulated student.
type RunResult struct {
	Participant  model.Participant
	CheckAwarded int
	Scrubs       int
	Answered     int
	Correct      int
}

// StudentRunner drives one simulated student through the whole session:
// join, wait for the host to start, inquiry, video with attention checks
// and anti-scrub, then the quiz.
type StudentRunner struct {
	client      *Client
	code        string
	displayName string
	step        float64
	tick        time.Duration
	saveEvery   int
	scrubOnce   bool
	choose      Chooser
	log         zerolog.Logger
}

// RunnerOption configures a StudentRunner.
type RunnerOption func(*StudentRunner)

// WithTick sets the wall time between playback ticks. Zero runs as fast
// as the server answers.
func WithTick(d time.Duration) RunnerOption {
	return func(r *StudentRunner) { r.tick = d }
}

// WithStep sets how many seconds of video one tick covers. Values above
// playback.ScrubToleranceSeconds would trip the anti-scrub check.
func WithStep(seconds float64) RunnerOption {
	return func(r *StudentRunner) { r.step = seconds }
}

// WithChooser sets the answer strategy.
func WithChooser(c Chooser) RunnerOption {
	return func(r *StudentRunner) { r.choose = c }
}

// WithScrub makes the student try one forward seek during the video.
func WithScrub() RunnerOption {
	return func(r *StudentRunner) { r.scrubOnce = true }
}

// NewStudentRunner creates a runner. c is used unauthenticated, or with a
// student token for an identified join.
func NewStudentRunner(c *Client, code, displayName string, log zerolog.Logger, opts ...RunnerOption) *StudentRunner {
	r := &StudentRunner{
		client:      c,
		code:        code,
		displayName: displayName,
		step:        1,
		tick:        time.Second,
		saveEvery:   5,
		choose:      RandomChooser,
		log:         log.With().Str("component", "student_runner").Str("name", displayName).Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run plays the session to completion. It returns ErrGone if the host ends
// the session midway.
func (r *StudentRunner) Run(ctx context.Context) (*RunResult, error) {
	joined, err := r.client.Join(ctx, r.code, r.displayName)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	pc := r.client.WithToken(joined.Token)
	view := joined.Session
	phase := joined.Participant.Phase
	wait := time.Duration(joined.PollIntervalMS) * time.Millisecond
	if wait <= 0 {
		wait = DefaultPollInterval
	}
	r.log.Info().
		Str("participant_id", joined.Participant.ID.String()).
		Bool("already_joined", joined.AlreadyJoined).
		Str("phase", string(phase)).
		Msg("Joined")

	res := &RunResult{}

	if phase == model.PhaseWaiting {
		if err := r.waitForStart(ctx, pc, wait); err != nil {
			return nil, err
		}
		phase = model.PhaseInquiry
	}
	if phase == model.PhaseInquiry {
		if _, err := pc.UpdatePhase(ctx, model.PhaseVideo, nil); err != nil {
			return nil, fmt.Errorf("start video: %w", err)
		}
		phase = model.PhaseVideo
	}
	if phase == model.PhaseVideo {
		pos, err := r.watch(ctx, pc, &view, res)
		if err != nil {
			return nil, err
		}
		if _, err := pc.UpdatePhase(ctx, model.PhaseQuiz, &pos); err != nil {
			return nil, fmt.Errorf("start quiz: %w", err)
		}
		phase = model.PhaseQuiz
	}
	if phase == model.PhaseQuiz {
		if err := r.answerAll(ctx, pc, &view, res); err != nil {
			return nil, err
		}
	}

	state, err := pc.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("final state: %w", err)
	}
	res.Participant = *state.Participant
	r.log.Info().Int("score", res.Participant.Score).Int("rank", state.Rank).Msg("Finished")
	return res, nil
}

// waitForStart retries entering the inquiry phase until the host starts the session.
func (r *StudentRunner) waitForStart(ctx context.Context, pc *Client, wait time.Duration) error {
	for {
		_, err := pc.UpdatePhase(ctx, model.PhaseInquiry, nil)
		if err == nil {
			return nil
		}
		if !HasCode(err, string(response.ErrSessionNotActive)) {
			return fmt.Errorf("enter inquiry: %w", err)
		}
		r.log.Debug().Msg("Waiting for host to start")
		if err := pause(ctx, wait); err != nil {
			return err
		}
	}
}

// watch plays the video through the playback engine on a simulated clock
// and returns the final position.
func (r *StudentRunner) watch(ctx context.Context, pc *Client, view *model.SessionView, res *RunResult) (float64, error) {
	engine := playback.NewEngine(view.AttentionChecks, view.VideoDurationSeconds)
	state, err := pc.Me(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}
	engine.Restore(state.CompletedChecks, state.Participant.VideoPositionSeconds)

	pos := engine.LastKnownTime()
	clock := time.Now()
	stepDur := time.Duration(r.step * float64(time.Second))
	scrubbed := !r.scrubOnce
	ticks := 0

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		clock = clock.Add(stepDur)

		act := engine.Tick(pos, clock)
		switch act.Kind {
		case playback.ActionSeekBack:
			if err := pc.ReportScrub(ctx, pos, act.SeekTo); err != nil {
				return 0, fmt.Errorf("report scrub: %w", err)
			}
			r.log.Debug().Float64("from", pos).Float64("to", act.SeekTo).Msg("Snapped back")
			res.Scrubs++
			pos = act.SeekTo

		case playback.ActionPauseForCheck:
			letter := model.ChoiceLetter(r.choose(act.Check.Question, act.Check.Choices))
			result, err := pc.SubmitCheck(ctx, act.Check.Order, letter)
			if err != nil {
				return 0, fmt.Errorf("submit check %d: %w", act.Check.Order, err)
			}
			engine.Answer(act.Check.Order, result.Correct, clock)
			res.CheckAwarded += result.Awarded

		case playback.ActionReadyForQuiz:
			if _, err := pc.SaveProgress(ctx, pos); err != nil {
				return 0, fmt.Errorf("save progress: %w", err)
			}
			return pos, nil

		case playback.ActionContinue:
			ticks++
			if ticks%r.saveEvery == 0 {
				if _, err := pc.SaveProgress(ctx, pos); err != nil {
					r.log.Warn().Err(err).Msg("Autosave failed")
				}
			}
			if !scrubbed && pos > 0 {
				scrubbed = true
				pos += 10 * playback.ScrubToleranceSeconds
			} else {
				pos += r.step
			}
			if pos > view.VideoDurationSeconds {
				pos = view.VideoDurationSeconds
			}
		}

		if err := pause(ctx, r.tick); err != nil {
			return 0, err
		}
	}
}

func (r *StudentRunner) answerAll(ctx context.Context, pc *Client, view *model.SessionView, res *RunResult) error {
	for _, q := range view.Questions {
		result, err := pc.SubmitAnswer(ctx, q.ID, r.choose(q.Text, q.Choices))
		if err != nil {
			return fmt.Errorf("answer %s: %w", q.ID, err)
		}
		res.Answered++
		if result.Correct {
			res.Correct++
		}
	}
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
