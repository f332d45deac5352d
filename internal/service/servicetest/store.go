// Package servicetest provides in-memory stores for exercising the
// service layer without Postgres.
package servicetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/repository"
)

// Store implements every service store over maps, enforcing the same
// uniqueness and cascade rules as the Postgres schema. It is safe for
// concurrent use.
type Store struct {
	mu sync.Mutex

	sessions     map[uuid.UUID]*model.LiveSession
	codes        map[string]uuid.UUID
	participants map[uuid.UUID]*model.Participant
	responses    []model.Response
	checks       map[checkKey]model.CheckCompletion
	scrubs       []model.ScrubViolation

	clock time.Time
}

type checkKey struct {
	participant uuid.UUID
	order       int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		sessions:     make(map[uuid.UUID]*model.LiveSession),
		codes:        make(map[string]uuid.UUID),
		participants: make(map[uuid.UUID]*model.Participant),
		checks:       make(map[checkKey]model.CheckCompletion),
		clock:        time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
	}
}

// now advances a fake clock so join order is strict.
func (m *Store) now() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

// ─── SessionStore ────────────────────────────────────────────────

func (m *Store) Create(ctx context.Context, s *model.LiveSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.codes[s.Code]; taken {
		return repository.ErrDuplicate
	}
	s.ID = uuid.New()
	s.CreatedAt = m.now()
	s.UpdatedAt = s.CreatedAt
	stored := *s
	m.sessions[s.ID] = &stored
	m.codes[s.Code] = s.ID
	return nil
}

func (m *Store) summary(s *model.LiveSession) *model.LiveSession {
	out := *s
	out.Content = model.SessionContent{}
	return &out
}

func (m *Store) GetByCode(ctx context.Context, code string) (*model.LiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.codes[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m.summary(m.sessions[id]), nil
}

func (m *Store) GetByID(ctx context.Context, id uuid.UUID) (*model.LiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m.summary(s), nil
}

func (m *Store) GetContent(ctx context.Context, id uuid.UUID) (*model.SessionContent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneContent(&s.Content), nil
}

func (m *Store) ListByHost(ctx context.Context, hostID string) ([]model.LiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.LiveSession
	for _, s := range m.sessions {
		if s.HostID == hostID {
			out = append(out, *m.summary(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Store) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.LiveSessionStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	return true, nil
}

func (m *Store) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}

	scrubs := m.scrubs[:0]
	for _, v := range m.scrubs {
		if v.SessionID != id {
			scrubs = append(scrubs, v)
		}
	}
	m.scrubs = scrubs
	for k, cc := range m.checks {
		if cc.SessionID == id {
			delete(m.checks, k)
		}
	}
	responses := m.responses[:0]
	for _, r := range m.responses {
		if r.SessionID != id {
			responses = append(responses, r)
		}
	}
	m.responses = responses
	for pid, p := range m.participants {
		if p.SessionID == id {
			delete(m.participants, pid)
		}
	}
	delete(m.codes, s.Code)
	delete(m.sessions, id)
	return nil
}

// ─── ParticipantStore ────────────────────────────────────────────

// Participants is the participant view of a Store.
type Participants struct{ *Store }

func (m Participants) Create(ctx context.Context, p *model.Participant) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[p.SessionID]; !ok {
		return false, repository.ErrNotFound
	}
	if p.UserID != nil {
		for _, existing := range m.participants {
			if existing.SessionID == p.SessionID && existing.UserID != nil && *existing.UserID == *p.UserID {
				*p = *existing
				return false, nil
			}
		}
	}
	p.ID = uuid.New()
	p.Score = 0
	p.Phase = model.PhaseWaiting
	p.CurrentQuestionIndex = 0
	p.JoinedAt = m.now()
	p.UpdatedAt = p.JoinedAt
	stored := *p
	m.participants[p.ID] = &stored
	return true, nil
}

func (m Participants) GetByID(ctx context.Context, id uuid.UUID) (*model.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (m Participants) ListBySessionCode(ctx context.Context, code string) ([]model.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Participant
	for _, p := range m.participants {
		if p.SessionCode == code {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m Participants) UpdatePhase(ctx context.Context, id uuid.UUID, phase model.Phase) (*model.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p.Phase = phase
	out := *p
	return &out, nil
}

func (m Participants) AddScore(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	p.Score += delta
	return p.Score, nil
}

// ─── ResponseStore ───────────────────────────────────────────────

// Responses is the response view of a Store.
type Responses struct{ *Store }

func (m Responses) RecordAnswer(ctx context.Context, resp *model.Response, award, questionIndex, totalQuestions int) (*repository.AnswerOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[resp.ParticipantID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	answered := 0
	for _, r := range m.responses {
		if r.ParticipantID == resp.ParticipantID {
			if r.QuestionID == resp.QuestionID {
				out := *p
				return &repository.AnswerOutcome{Participant: &out}, nil
			}
			answered++
		}
	}

	resp.ID = uuid.New()
	resp.CreatedAt = m.now()
	m.responses = append(m.responses, *resp)
	answered++

	p.Score += award
	if questionIndex+1 > p.CurrentQuestionIndex {
		p.CurrentQuestionIndex = questionIndex + 1
	}
	if answered >= totalQuestions {
		p.Phase = model.PhaseCompleted
	}
	out := *p
	return &repository.AnswerOutcome{Participant: &out, Recorded: true, Response: resp}, nil
}

func (m Responses) ListBySessionCode(ctx context.Context, code string) ([]model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Response
	for _, r := range m.responses {
		if r.SessionCode == code {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m Responses) AnsweredQuestionIDs(ctx context.Context, participantID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.responses {
		if r.ParticipantID == participantID {
			out = append(out, r.QuestionID)
		}
	}
	return out, nil
}

// ─── CheckStore / ScrubStore ─────────────────────────────────────

// Checks is the check completion view of a Store.
type Checks struct{ *Store }

func (m Checks) RecordCheck(ctx context.Context, cc *model.CheckCompletion) (*model.Participant, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[cc.ParticipantID]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	key := checkKey{cc.ParticipantID, cc.CheckOrder}
	if _, done := m.checks[key]; done {
		out := *p
		return &out, false, nil
	}
	cc.CreatedAt = m.now()
	m.checks[key] = *cc
	p.Score += cc.Awarded
	out := *p
	return &out, true, nil
}

func (m Checks) CompletedOrders(ctx context.Context, participantID uuid.UUID) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for k := range m.checks {
		if k.participant == participantID {
			out = append(out, k.order)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (m Checks) CountsBySession(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for k, cc := range m.checks {
		if cc.SessionID == sessionID {
			counts[k.participant]++
		}
	}
	return counts, nil
}

// Scrubs is the scrub violation view of a Store.
type Scrubs struct{ *Store }

func (m Scrubs) CountsBySession(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, v := range m.scrubs {
		if v.SessionID == sessionID {
			counts[v.ParticipantID]++
		}
	}
	return counts, nil
}

// ─── Views and inspection ────────────────────────────────────────

// Participants returns the ParticipantStore view.
func (m *Store) Participants() Participants { return Participants{m} }

// Responses returns the ResponseStore view.
func (m *Store) Responses() Responses { return Responses{m} }

// Checks returns the CheckStore view.
func (m *Store) Checks() Checks { return Checks{m} }

// Scrubs returns the ScrubStore view.
func (m *Store) Scrubs() Scrubs { return Scrubs{m} }

// SessionCount returns the number of stored sessions.
func (m *Store) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ParticipantCount returns the number of participants in a session, or in
// every session when sessionID is uuid.Nil.
func (m *Store) ParticipantCount(sessionID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.participants {
		if sessionID == uuid.Nil || p.SessionID == sessionID {
			n++
		}
	}
	return n
}

// ResponseCount returns the number of responses logged for a session.
func (m *Store) ResponseCount(sessionID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.responses {
		if r.SessionID == sessionID {
			n++
		}
	}
	return n
}

// CheckCount returns the number of check completions for a session.
func (m *Store) CheckCount(sessionID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, cc := range m.checks {
		if cc.SessionID == sessionID {
			n++
		}
	}
	return n
}

// SetPhase forces a participant's phase, bypassing the transition gates.
func (m *Store) SetPhase(id uuid.UUID, phase model.Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.participants[id]; ok {
		p.Phase = phase
	}
}

// AddScrub records a scrub violation as the scrub worker would.
func (m *Store) AddScrub(v model.ScrubViolation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scrubs = append(m.scrubs, v)
}

func cloneContent(c *model.SessionContent) *model.SessionContent {
	out := &model.SessionContent{
		Questions:       make([]model.Question, len(c.Questions)),
		AttentionChecks: make([]model.AttentionCheck, len(c.AttentionChecks)),
		Inquiry:         c.Inquiry,
	}
	copy(out.Questions, c.Questions)
	copy(out.AttentionChecks, c.AttentionChecks)
	return out
}
