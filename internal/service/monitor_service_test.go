package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stemsi/livesession-backend/internal/model"
)

func TestDashboard(t *testing.T) {
	h := newHarness(t)
	s := activeSession(t, h)
	ctx := context.Background()

	ada, _, _ := h.participants.Join(ctx, "AB12CD", "Ada", nil)
	bob, _, _ := h.participants.Join(ctx, "AB12CD", "Bob", nil)

	moveTo(t, h, ada.ID, model.PhaseInquiry, nil)
	moveTo(t, h, ada.ID, model.PhaseVideo, nil)
	if _, err := h.participants.SubmitCheck(ctx, ada.ID, 0, "A"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if _, err := h.progress.SaveProgress(ctx, ada.ID, 21); err != nil {
		t.Fatalf("save: %v", err)
	}
	h.store.AddScrub(model.ScrubViolation{SessionID: s.ID, ParticipantID: ada.ID, FromSeconds: 30, ToSeconds: 21})

	h.store.SetPhase(bob.ID, model.PhaseQuiz)
	if _, err := h.participants.SubmitAnswer(ctx, bob.ID, "q1", 0); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := h.participants.SubmitAnswer(ctx, bob.ID, "q2", 0); err != nil {
		t.Fatalf("answer: %v", err)
	}

	d, err := h.monitor.Dashboard(ctx, hostID, "ab12cd")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.Stats.TotalParticipants != 2 || d.Stats.TotalResponses != 2 || d.Stats.TotalScrubs != 1 {
		t.Fatalf("unexpected stats: %+v", d.Stats)
	}
	if d.Stats.ByPhase[model.PhaseVideo] != 1 || d.Stats.ByPhase[model.PhaseQuiz] != 1 {
		t.Fatalf("unexpected phase counts: %+v", d.Stats.ByPhase)
	}

	first, second := d.Leaderboard[0], d.Leaderboard[1]
	if first.ParticipantID != bob.ID || first.Score != 10 || first.Rank != 1 || first.CurrentQuestionIndex != 2 {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if second.ParticipantID != ada.ID || second.ChecksCompleted != 1 || second.ScrubCount != 1 || second.VideoPositionSeconds != 21 {
		t.Fatalf("unexpected second row: %+v", second)
	}

	if len(d.Accuracy) != 3 || d.Accuracy[0].Correct != 1 || d.Accuracy[1].Answered != 1 || d.Accuracy[1].Correct != 0 {
		t.Fatalf("unexpected accuracy: %+v", d.Accuracy)
	}

	if _, err := h.monitor.Dashboard(ctx, "someone-else", "AB12CD"); !errors.Is(err, ErrNotSessionHost) {
		t.Fatalf("expected ErrNotSessionHost, got %v", err)
	}
}
