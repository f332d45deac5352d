package scoring

import "github.com/stemsi/livesession-backend/internal/model"

// QuestionStat is the aggregate accuracy for one question.
type QuestionStat struct {
	QuestionID string  `json:"question_id"`
	Text       string  `json:"text"`
	Answered   int     `json:"answered"`
	Correct    int     `json:"correct"`
	Accuracy   float64 `json:"accuracy"`
	// ChoiceCounts[i] is how many participants picked choice i.
	ChoiceCounts [4]int `json:"choice_counts"`
}

// QuestionAccuracy aggregates responses per question, in question order.
// Responses for unknown question ids are ignored.
func QuestionAccuracy(questions []model.Question, responses []model.Response) []QuestionStat {
	stats := make([]QuestionStat, len(questions))
	index := make(map[string]int, len(questions))
	for i, q := range questions {
		stats[i] = QuestionStat{QuestionID: q.ID, Text: q.Text}
		index[q.ID] = i
	}

	for _, r := range responses {
		i, ok := index[r.QuestionID]
		if !ok {
			continue
		}
		stats[i].Answered++
		if r.IsCorrect {
			stats[i].Correct++
		}
		if r.SelectedChoice >= 0 && r.SelectedChoice < len(stats[i].ChoiceCounts) {
			stats[i].ChoiceCounts[r.SelectedChoice]++
		}
	}

	for i := range stats {
		if stats[i].Answered > 0 {
			stats[i].Accuracy = float64(stats[i].Correct) / float64(stats[i].Answered)
		}
	}
	return stats
}
