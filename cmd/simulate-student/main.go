package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/stemsi/livesession-backend/internal/config"
	"github.com/stemsi/livesession-backend/internal/liveclient"
	"github.com/stemsi/livesession-backend/internal/logger"
	"golang.org/x/sync/errgroup"
)

// simulate-student drives N simulated students through a live session over
// HTTP. With -host-token it also runs the teacher poll loop and logs the
// leaderboard on every refresh.
func main() {
	var (
		baseURL   string
		code      string
		students  int
		tick      time.Duration
		scrubbers int
		hostToken string
		interval  time.Duration
	)
	flag.StringVar(&baseURL, "url", "http://localhost:8080", "Server base URL")
	flag.StringVar(&code, "code", "", "Join code")
	flag.IntVar(&students, "n", 10, "Number of simulated students")
	flag.DurationVar(&tick, "tick", 250*time.Millisecond, "Wall time per second of video")
	flag.IntVar(&scrubbers, "scrubbers", 1, "How many students try to skip ahead once")
	flag.StringVar(&hostToken, "host-token", "", "Host token; enables the teacher poll loop")
	flag.DurationVar(&interval, "interval", liveclient.DefaultPollInterval, "Teacher poll interval")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if code == "" {
		fmt.Fprintln(os.Stderr, "usage: simulate-student -code ABC123 [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := liveclient.NewClient(baseURL, "")

	var teacher *liveclient.Poller
	teacherCtx, stopTeacher := context.WithCancel(ctx)
	defer stopTeacher()
	teacherDone := make(chan struct{})
	if hostToken != "" {
		host := client.WithToken(hostToken)
		teacher = liveclient.NewPoller(interval, func(ctx context.Context) error {
			view, err := liveclient.TeacherPoll(ctx, host, code)
			if err != nil {
				return err
			}
			ev := log.Info().Int("participants", len(view.Participants)).Int("responses", len(view.Responses))
			if len(view.Leaderboard) > 0 {
				top := view.Leaderboard[0]
				ev = ev.Str("leader", top.DisplayName).Int("leader_score", top.Score)
			}
			ev.Msg("Teacher dashboard")
			return nil
		}, log)
		go func() {
			defer close(teacherDone)
			if err := teacher.Run(teacherCtx); errors.Is(err, liveclient.ErrGone) {
				log.Info().Msg("Session ended, teacher view closed")
			}
		}()
	} else {
		close(teacherDone)
	}

	var completed, totalScore atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < students; i++ {
		opts := []liveclient.RunnerOption{liveclient.WithTick(tick)}
		if i < scrubbers {
			opts = append(opts, liveclient.WithScrub())
		}
		runner := liveclient.NewStudentRunner(client, code, fmt.Sprintf("Student %02d", i+1), log, opts...)
		g.Go(func() error {
			res, err := runner.Run(gctx)
			if errors.Is(err, liveclient.ErrGone) {
				// The host ended the session; that is a normal finish.
				return nil
			}
			if err != nil {
				return err
			}
			completed.Add(1)
			totalScore.Add(int64(res.Participant.Score))
			return nil
		})
	}

	err := g.Wait()
	stopTeacher()
	<-teacherDone

	ev := log.Info().Int64("completed", completed.Load()).Int("students", students)
	if n := completed.Load(); n > 0 {
		ev = ev.Float64("mean_score", float64(totalScore.Load())/float64(n))
	}
	if teacher != nil {
		ev = ev.Int64("teacher_polls", teacher.Polls()).Int64("teacher_skipped", teacher.Skipped())
	}
	ev.Msg("Simulation finished")

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Simulation failed")
	}
}
