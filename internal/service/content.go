package service

import (
	"math"

	"github.com/stemsi/livesession-backend/internal/model"
)

// ValidateContent checks the structural shape of a content bundle. It does
// not judge whether the questions make sense.
func ValidateContent(c *model.SessionContent, videoDurationSeconds float64) error {
	if videoDurationSeconds <= 0 || math.IsNaN(videoDurationSeconds) || math.IsInf(videoDurationSeconds, 0) {
		return contentError("video duration must be positive")
	}

	seen := make(map[string]bool, len(c.Questions))
	for i, q := range c.Questions {
		if q.ID == "" || q.Text == "" {
			return contentError("question %d is missing id or text", i)
		}
		if seen[q.ID] {
			return contentError("question id %q is duplicated", q.ID)
		}
		seen[q.ID] = true
		if len(q.Choices) != 4 {
			return contentError("question %q must have 4 choices", q.ID)
		}
		if q.CorrectChoiceIndex < 0 || q.CorrectChoiceIndex > 3 {
			return contentError("question %q has no valid correct choice", q.ID)
		}
	}

	for i, ac := range c.AttentionChecks {
		if ac.Question == "" {
			return contentError("attention check %d is missing its question", i)
		}
		if len(ac.Choices) != 4 {
			return contentError("attention check %d must have 4 choices", i)
		}
		if ac.TimestampSeconds < 0 || ac.TimestampSeconds > videoDurationSeconds {
			return contentError("attention check %d is outside the video", i)
		}
		switch ac.CorrectChoiceLetter {
		case "A", "B", "C", "D":
		default:
			return contentError("attention check %d has no valid correct letter", i)
		}
	}
	return nil
}
