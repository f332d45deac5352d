package scoring

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/livesession-backend/internal/model"
)

func participant(name string, score int, joined time.Time) model.Participant {
	return model.Participant{
		ID:          uuid.New(),
		DisplayName: name,
		Score:       score,
		Phase:       model.PhaseQuiz,
		JoinedAt:    joined,
	}
}

func TestAwards(t *testing.T) {
	if got := AttentionCheckAward(true); got != 5 {
		t.Fatalf("correct check award = %d, want 5", got)
	}
	if got := AttentionCheckAward(false); got != 2 {
		t.Fatalf("wrong check award = %d, want 2", got)
	}
	if got := QuestionAward(true); got != 10 {
		t.Fatalf("correct question award = %d, want 10", got)
	}
	if got := QuestionAward(false); got != 0 {
		t.Fatalf("wrong question award = %d, want 0", got)
	}
}

func TestLeaderboardOrderIsIndependentOfInput(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	players := []model.Participant{
		participant("ada", 37, base.Add(3*time.Second)),
		participant("bob", 20, base.Add(1*time.Second)),
		participant("cy", 37, base.Add(1*time.Second)),
		participant("dee", 0, base),
		participant("eve", 20, base.Add(1*time.Second)),
	}

	want := Leaderboard(players)
	for i := 1; i < len(want); i++ {
		if want[i-1].Score < want[i].Score {
			t.Fatalf("not sorted by score desc at %d: %+v", i, want)
		}
	}
	if want[0].DisplayName != "cy" || want[1].DisplayName != "ada" {
		t.Fatalf("tie on score should go to earlier join, got %s then %s", want[0].DisplayName, want[1].DisplayName)
	}

	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 50; n++ {
		shuffled := make([]model.Participant, len(players))
		copy(shuffled, players)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got := Leaderboard(shuffled)
		for i := range got {
			if got[i].ParticipantID != want[i].ParticipantID {
				t.Fatalf("permutation %d: position %d = %s, want %s", n, i, got[i].DisplayName, want[i].DisplayName)
			}
			if got[i].Rank != i+1 {
				t.Fatalf("rank at %d = %d", i, got[i].Rank)
			}
		}
	}
}

func TestLeaderboardDoesNotMutateInput(t *testing.T) {
	base := time.Now()
	players := []model.Participant{participant("a", 1, base), participant("b", 9, base)}
	_ = Leaderboard(players)
	if players[0].DisplayName != "a" {
		t.Fatalf("input reordered")
	}
}

func TestRankOf(t *testing.T) {
	base := time.Now()
	players := []model.Participant{participant("a", 1, base), participant("b", 9, base)}
	lb := Leaderboard(players)

	rank, ok := RankOf(lb, players[0].ID)
	if !ok || rank != 2 {
		t.Fatalf("rank = %d, %v; want 2, true", rank, ok)
	}
	if _, ok := RankOf(lb, uuid.New()); ok {
		t.Fatalf("unknown participant should not be ranked")
	}
}

func TestQuestionAccuracy(t *testing.T) {
	questions := []model.Question{
		{ID: "q1", Text: "one", Choices: []string{"a", "b", "c", "d"}, CorrectChoiceIndex: 1},
		{ID: "q2", Text: "two", Choices: []string{"a", "b", "c", "d"}, CorrectChoiceIndex: 0},
	}
	responses := []model.Response{
		{QuestionID: "q1", SelectedChoice: 1, IsCorrect: true},
		{QuestionID: "q1", SelectedChoice: 2, IsCorrect: false},
		{QuestionID: "q1", SelectedChoice: 1, IsCorrect: true},
		{QuestionID: "q9", SelectedChoice: 0, IsCorrect: true},
	}

	stats := QuestionAccuracy(questions, responses)
	if len(stats) != 2 {
		t.Fatalf("len = %d", len(stats))
	}
	if stats[0].Answered != 3 || stats[0].Correct != 2 {
		t.Fatalf("q1 = %+v", stats[0])
	}
	if stats[0].ChoiceCounts != [4]int{0, 2, 1, 0} {
		t.Fatalf("q1 choice counts = %v", stats[0].ChoiceCounts)
	}
	if stats[1].Answered != 0 || stats[1].Accuracy != 0 {
		t.Fatalf("q2 should be empty, got %+v", stats[1])
	}
	if stats[0].Accuracy < 0.66 || stats[0].Accuracy > 0.67 {
		t.Fatalf("q1 accuracy = %v", stats[0].Accuracy)
	}
}
