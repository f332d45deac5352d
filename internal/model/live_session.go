package model

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// LiveSessionStatus enumerates the states of a live session.
// "ended" is never stored: ending a session deletes it.
type LiveSessionStatus string

const (
	LiveSessionStatusWaiting LiveSessionStatus = "waiting"
	LiveSessionStatusActive  LiveSessionStatus = "active"
	LiveSessionStatusEnded   LiveSessionStatus = "ended"
)

// LiveSession is one hosted live-quiz instance identified by its join code.
type LiveSession struct {
	ID                   uuid.UUID         `json:"id"`
	Code                 string            `json:"code"`
	HostID               string            `json:"host_id"`
	Status               LiveSessionStatus `json:"status"`
	Content              SessionContent    `json:"content"`
	VideoURL             string            `json:"video_url,omitempty"`
	VideoDurationSeconds float64           `json:"video_duration_seconds"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// SessionContent is the pre-generated bundle handed in at creation time.
type SessionContent struct {
	Questions       []Question       `json:"questions" binding:"dive"`
	AttentionChecks []AttentionCheck `json:"attention_checks" binding:"dive"`
	Inquiry         InquiryContent   `json:"inquiry"`
}

// Question is a multiple-choice quiz question with four choices.
type Question struct {
	ID                 string   `json:"id" binding:"required,max=128"`
	Text               string   `json:"text" binding:"required"`
	Choices            []string `json:"choices" binding:"len=4,dive,required"`
	CorrectChoiceIndex int      `json:"correct_choice_index" binding:"min=0,max=3"`
}

// AttentionCheck is a question bound to a video timestamp.
// Order is its position in timestamp order and identifies it within a session.
type AttentionCheck struct {
	TimestampSeconds    float64  `json:"timestamp_seconds" binding:"min=0"`
	Question            string   `json:"question" binding:"required"`
	Choices             []string `json:"choices" binding:"len=4,dive,required"`
	CorrectChoiceLetter string   `json:"correct_choice_letter" binding:"required,choiceletter"`
	Order               int      `json:"order"`
}

// InquiryContent is the opaque material for the Socratic inquiry phase.
type InquiryContent struct {
	Hook     string          `json:"hook"`
	Prompts  []string        `json:"prompts,omitempty"`
	Material json.RawMessage `json:"material,omitempty"`
}

// SortChecks orders attention checks by timestamp and reassigns Order.
func (c *SessionContent) SortChecks() {
	sort.SliceStable(c.AttentionChecks, func(i, j int) bool {
		return c.AttentionChecks[i].TimestampSeconds < c.AttentionChecks[j].TimestampSeconds
	})
	for i := range c.AttentionChecks {
		c.AttentionChecks[i].Order = i
	}
}

// QuestionByID returns the question and its index.
func (c *SessionContent) QuestionByID(id string) (int, *Question, bool) {
	for i := range c.Questions {
		if c.Questions[i].ID == id {
			return i, &c.Questions[i], true
		}
	}
	return -1, nil, false
}

// CheckByOrder returns the attention check with the given order.
func (c *SessionContent) CheckByOrder(order int) (*AttentionCheck, bool) {
	for i := range c.AttentionChecks {
		if c.AttentionChecks[i].Order == order {
			return &c.AttentionChecks[i], true
		}
	}
	return nil, false
}

// ChoiceLetter maps a 0-based choice index to its letter ("A".."D").
func ChoiceLetter(index int) string {
	if index < 0 || index > 3 {
		return ""
	}
	return string(rune('A' + index))
}

// SessionView is the session as shown to participants (no answer keys).
type SessionView struct {
	ID                   uuid.UUID                `json:"id"`
	Code                 string                   `json:"code"`
	Status               LiveSessionStatus        `json:"status"`
	VideoURL             string                   `json:"video_url,omitempty"`
	VideoDurationSeconds float64                  `json:"video_duration_seconds"`
	Questions            []QuestionForParticipant `json:"questions"`
	AttentionChecks      []CheckForParticipant    `json:"attention_checks"`
	Inquiry              InquiryContent           `json:"inquiry"`
}

// QuestionForParticipant is a question without its correct answer.
type QuestionForParticipant struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Choices []string `json:"choices"`
}

// CheckForParticipant is an attention check without its correct answer.
type CheckForParticipant struct {
	TimestampSeconds float64  `json:"timestamp_seconds"`
	Question         string   `json:"question"`
	Choices          []string `json:"choices"`
	Order            int      `json:"order"`
}

// View strips answer keys from the session.
func (s *LiveSession) View() SessionView {
	v := SessionView{
		ID:                   s.ID,
		Code:                 s.Code,
		Status:               s.Status,
		VideoURL:             s.VideoURL,
		VideoDurationSeconds: s.VideoDurationSeconds,
		Questions:            make([]QuestionForParticipant, 0, len(s.Content.Questions)),
		AttentionChecks:      make([]CheckForParticipant, 0, len(s.Content.AttentionChecks)),
		Inquiry:              s.Content.Inquiry,
	}
	for _, q := range s.Content.Questions {
		v.Questions = append(v.Questions, QuestionForParticipant{ID: q.ID, Text: q.Text, Choices: q.Choices})
	}
	for _, ac := range s.Content.AttentionChecks {
		v.AttentionChecks = append(v.AttentionChecks, CheckForParticipant{
			TimestampSeconds: ac.TimestampSeconds,
			Question:         ac.Question,
			Choices:          ac.Choices,
			Order:            ac.Order,
		})
	}
	return v
}

// CreateLiveSessionRequest is the payload for hosting a new live session.
type CreateLiveSessionRequest struct {
	Content              SessionContent `json:"content" binding:"required"`
	VideoURL             string         `json:"video_url" binding:"omitempty,url,max=2048"`
	VideoDurationSeconds float64        `json:"video_duration_seconds" binding:"required,gt=0"`
}

// UpdateLiveSessionStatusRequest is the payload for moving a session forward.
type UpdateLiveSessionStatusRequest struct {
	Status LiveSessionStatus `json:"status" binding:"required,oneof=waiting active ended"`
}
