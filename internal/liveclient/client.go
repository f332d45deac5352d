// Package liveclient is the polling half of the live session protocol: a
// typed HTTP client for the live API plus the teacher and student poll loops
// built on it.
package liveclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/scoring"
	"github.com/stemsi/livesession-backend/internal/service"
)

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 10 * time.Second

// ErrGone is returned when the server answers 404: the session ended or the
// participant was removed. It is terminal; pollers stop on it.
var ErrGone = errors.New("liveclient: session or participant is gone")

// TransientError is any failure other than ErrGone. Callers keep their last
// good state and retry on the next tick.
type TransientError struct {
	Status int    // 0 for network errors
	Code   string // API error code, if the server sent one
	Err    error
}

func (e *TransientError) Error() string {
	switch {
	case e.Status == 0:
		return fmt.Sprintf("liveclient: %v", e.Err)
	case e.Code != "":
		return fmt.Sprintf("liveclient: status %d: %s", e.Status, e.Code)
	default:
		return fmt.Sprintf("liveclient: status %d", e.Status)
	}
}

func (e *TransientError) Unwrap() error { return e.Err }

// HasCode reports whether err is a TransientError carrying the API code.
func HasCode(err error, code string) bool {
	var te *TransientError
	return errors.As(err, &te) && te.Code == code
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

// Client calls the live session API with one bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL (scheme and host,
// e.g. "http://localhost:8080").
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	cp := *c
	cp.httpClient = hc
	return &cp
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Status: resp.StatusCode, Err: fmt.Errorf("read: %w", err)}
	}

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode == http.StatusNotFound {
		if env.Error != nil {
			return fmt.Errorf("%w (%s)", ErrGone, env.Error.Code)
		}
		return ErrGone
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		te := &TransientError{Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
		if env.Error != nil {
			te.Code = env.Error.Code
			te.Err = errors.New(env.Error.Message)
		}
		return te
	}
	if decodeErr != nil {
		return &TransientError{Status: resp.StatusCode, Err: fmt.Errorf("unmarshal: %w", decodeErr)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &TransientError{Status: resp.StatusCode, Err: fmt.Errorf("unmarshal data: %w", err)}
	}
	return nil
}

// ─── Host calls ────────────────────────────────────────────────────────────

// CreatedSession is the result of hosting a session.
type CreatedSession struct {
	Session        model.LiveSession `json:"session"`
	PollIntervalMS int64             `json:"poll_interval_ms"`
}

// PollInterval is the server's advertised poll interval.
func (s *CreatedSession) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

// CreateSession hosts a new session.
func (c *Client) CreateSession(ctx context.Context, req *model.CreateLiveSessionRequest) (*CreatedSession, error) {
	var out CreatedSession
	if err := c.call(ctx, http.MethodPost, "/api/v1/live/sessions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Session fetches the full session, answer keys included.
func (c *Client) Session(ctx context.Context, code string) (*model.LiveSession, error) {
	var out struct {
		Session model.LiveSession `json:"session"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/live/sessions/"+code, nil, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

// SetStatus moves the session to status.
func (c *Client) SetStatus(ctx context.Context, code string, status model.LiveSessionStatus) (*model.LiveSession, error) {
	var out struct {
		Session *model.LiveSession `json:"session"`
	}
	req := model.UpdateLiveSessionStatusRequest{Status: status}
	if err := c.call(ctx, http.MethodPatch, "/api/v1/live/sessions/"+code+"/status", req, &out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

// EndSession deletes the session and everything under it.
func (c *Client) EndSession(ctx context.Context, code string) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/live/sessions/"+code, nil, nil)
}

// ParticipantList is the participants endpoint body. Participants is only
// filled for the host.
type ParticipantList struct {
	Total        int                 `json:"total"`
	Leaderboard  []scoring.Standing  `json:"leaderboard"`
	Participants []model.Participant `json:"participants"`
}

// Participants fetches the session roster. Works with host and participant tokens.
func (c *Client) Participants(ctx context.Context, code string) (*ParticipantList, error) {
	var out ParticipantList
	if err := c.call(ctx, http.MethodGet, "/api/v1/live/sessions/"+code+"/participants", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Responses fetches the quiz response log.
func (c *Client) Responses(ctx context.Context, code string) ([]model.Response, error) {
	var out struct {
		Responses []model.Response `json:"responses"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/live/sessions/"+code+"/responses", nil, &out); err != nil {
		return nil, err
	}
	return out.Responses, nil
}

// ─── Participant calls ─────────────────────────────────────────────────────

// SessionView fetches the public session view by join code.
func (c *Client) SessionView(ctx context.Context, code string) (*model.SessionView, error) {
	var out struct {
		Session model.SessionView `json:"session"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/live/join/"+code, nil, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

// Joined is the result of a join.
type Joined struct {
	Participant    model.Participant `json:"participant"`
	Token          string            `json:"token"`
	AlreadyJoined  bool              `json:"already_joined"`
	Session        model.SessionView `json:"session"`
	PollIntervalMS int64             `json:"poll_interval_ms"`
}

// Join joins the session. With a student token the join is idempotent.
func (c *Client) Join(ctx context.Context, code, displayName string) (*Joined, error) {
	var out Joined
	req := model.JoinLiveSessionRequest{Code: code, DisplayName: displayName}
	if err := c.call(ctx, http.MethodPost, "/api/v1/live/join", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me fetches the caller's own participant state.
func (c *Client) Me(ctx context.Context) (*service.ParticipantState, error) {
	var out service.ParticipantState
	if err := c.call(ctx, http.MethodGet, "/api/v1/live/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePhase asks the server to move the caller to phase. position is
// required for the video to quiz transition.
func (c *Client) UpdatePhase(ctx context.Context, phase model.Phase, position *float64) (*model.Participant, error) {
	var out struct {
		Participant model.Participant `json:"participant"`
	}
	req := model.UpdatePhaseRequest{Phase: phase, VideoPositionSeconds: position}
	if err := c.call(ctx, http.MethodPatch, "/api/v1/live/me/phase", req, &out); err != nil {
		return nil, err
	}
	return &out.Participant, nil
}

// SubmitCheck answers the attention check with the given order.
func (c *Client) SubmitCheck(ctx context.Context, order int, letter string) (*service.CheckResult, error) {
	var out service.CheckResult
	req := model.SubmitCheckRequest{Order: &order, Choice: letter}
	if err := c.call(ctx, http.MethodPost, "/api/v1/live/me/checks", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitAnswer answers one quiz question.
func (c *Client) SubmitAnswer(ctx context.Context, questionID string, choice int) (*service.AnswerResult, error) {
	var out service.AnswerResult
	req := model.SubmitAnswerRequest{QuestionID: questionID, SelectedChoice: &choice}
	if err := c.call(ctx, http.MethodPost, "/api/v1/live/me/answers", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveProgress autosaves the playback position and returns the stored value.
func (c *Client) SaveProgress(ctx context.Context, position float64) (float64, error) {
	var out struct {
		PositionSeconds float64 `json:"position_seconds"`
	}
	req := model.SaveProgressRequest{PositionSeconds: &position}
	if err := c.call(ctx, http.MethodPut, "/api/v1/live/me/progress", req, &out); err != nil {
		return 0, err
	}
	return out.PositionSeconds, nil
}

// ReportScrub records an anti-scrub snap-back from one position to an earlier one.
func (c *Client) ReportScrub(ctx context.Context, from, to float64) error {
	req := model.ReportScrubRequest{FromSeconds: &from, ToSeconds: &to}
	return c.call(ctx, http.MethodPost, "/api/v1/live/me/scrubs", req, nil)
}
