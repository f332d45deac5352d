// Package scoring turns answers into score deltas and participants into a
// ranked leaderboard. Everything here is pure and safe for concurrent use.
package scoring

import (
	"sort"

	"github.com/google/uuid"
	"github.com/stemsi/livesession-backend/internal/model"
)

const (
	CheckCorrectAward    = 5
	CheckAttemptAward    = 2
	QuestionCorrectAward = 10
)

// AttentionCheckAward returns the points for answering an attention check.
// Wrong answers still earn attempt credit.
func AttentionCheckAward(correct bool) int {
	if correct {
		return CheckCorrectAward
	}
	return CheckAttemptAward
}

// QuestionAward returns the points for a quiz answer. No partial credit.
func QuestionAward(correct bool) int {
	if correct {
		return QuestionCorrectAward
	}
	return 0
}

// Standing is one leaderboard row.
type Standing struct {
	Rank          int         `json:"rank"`
	ParticipantID uuid.UUID   `json:"participant_id"`
	DisplayName   string      `json:"display_name"`
	Score         int         `json:"score"`
	Phase         model.Phase `json:"phase"`
	IsGuest       bool        `json:"is_guest"`
}

// Less is the leaderboard order: score descending, then earlier join,
// then participant id so equal rows never depend on input order.
func Less(a, b *model.Participant) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.ID.String() < b.ID.String()
}

// SortParticipants sorts in place using the leaderboard order.
func SortParticipants(participants []model.Participant) {
	sort.SliceStable(participants, func(i, j int) bool {
		return Less(&participants[i], &participants[j])
	})
}

// Leaderboard ranks participants. The input slice is not modified.
func Leaderboard(participants []model.Participant) []Standing {
	sorted := make([]model.Participant, len(participants))
	copy(sorted, participants)
	SortParticipants(sorted)

	standings := make([]Standing, len(sorted))
	for i := range sorted {
		p := &sorted[i]
		standings[i] = Standing{
			Rank:          i + 1,
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Score:         p.Score,
			Phase:         p.Phase,
			IsGuest:       p.IsGuest(),
		}
	}
	return standings
}

// RankOf returns the 1-based rank of participantID.
func RankOf(standings []Standing, participantID uuid.UUID) (int, bool) {
	for _, s := range standings {
		if s.ParticipantID == participantID {
			return s.Rank, true
		}
	}
	return 0, false
}
