package liveclient

import (
	"context"
	"time"

	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/scoring"
	"github.com/stemsi/livesession-backend/internal/service"
	"golang.org/x/sync/errgroup"
)

// TeacherView is one teacher dashboard refresh.
type TeacherView struct {
	Session      *model.LiveSession
	Participants []model.Participant
	Responses    []model.Response
	Leaderboard  []scoring.Standing
	Accuracy     []scoring.QuestionStat
	FetchedAt    time.Time
}

// TeacherPoll fetches session, participants and responses concurrently and
// derives the leaderboard and per-question accuracy locally. c must carry
// the host's token.
func TeacherPoll(ctx context.Context, c *Client, code string) (*TeacherView, error) {
	var (
		session   *model.LiveSession
		list      *ParticipantList
		responses []model.Response
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		session, err = c.Session(gctx, code)
		return err
	})
	g.Go(func() error {
		var err error
		list, err = c.Participants(gctx, code)
		return err
	})
	g.Go(func() error {
		var err error
		responses, err = c.Responses(gctx, code)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &TeacherView{
		Session:      session,
		Participants: list.Participants,
		Responses:    responses,
		Leaderboard:  scoring.Leaderboard(list.Participants),
		Accuracy:     scoring.QuestionAccuracy(session.Content.Questions, responses),
		FetchedAt:    time.Now(),
	}, nil
}

// StudentView is one student refresh.
type StudentView struct {
	Session     *model.SessionView
	State       *service.ParticipantState
	Leaderboard []scoring.Standing
	Rank        int
	Total       int
	FetchedAt   time.Time
}

// StudentPoll fetches the session view, the caller's participant and the
// leaderboard, and computes the caller's rank locally. c must carry the
// participant token.
func StudentPoll(ctx context.Context, c *Client, code string) (*StudentView, error) {
	var (
		view  *model.SessionView
		state *service.ParticipantState
		list  *ParticipantList
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		view, err = c.SessionView(gctx, code)
		return err
	})
	g.Go(func() error {
		var err error
		state, err = c.Me(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		list, err = c.Participants(gctx, code)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &StudentView{
		Session:     view,
		State:       state,
		Leaderboard: list.Leaderboard,
		Total:       list.Total,
		FetchedAt:   time.Now(),
	}
	if state.Participant != nil {
		out.Rank, _ = scoring.RankOf(list.Leaderboard, state.Participant.ID)
	}
	return out, nil
}
