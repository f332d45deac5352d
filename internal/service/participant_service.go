package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/config"
	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/repository"
	"github.com/stemsi/livesession-backend/internal/scoring"
)

// MaxDisplayNameLength bounds a participant's display name, in runes.
const MaxDisplayNameLength = 40

// ErrInvalidDisplayName is returned for blank or overlong display names.
var ErrInvalidDisplayName = errors.New("display name must be 1-40 characters")

// ParticipantService manages membership, phase progression and scoring of
// session participants.
type ParticipantService struct {
	sessions     *LiveSessionService
	participants ParticipantStore
	responses    ResponseStore
	checks       CheckStore
	events       *EventPublisher
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewParticipantService creates a new ParticipantService.
func NewParticipantService(
	sessions *LiveSessionService,
	participants ParticipantStore,
	responses ResponseStore,
	checks CheckStore,
	events *EventPublisher,
	rdb *redis.Client,
	log zerolog.Logger,
) *ParticipantService {
	return &ParticipantService{
		sessions:     sessions,
		participants: participants,
		responses:    responses,
		checks:       checks,
		events:       events,
		rdb:          rdb,
		log:          log.With().Str("component", "participant_service").Logger(),
	}
}

// ParticipantState is a participant's own view of where it stands.
type ParticipantState struct {
	Participant       *model.Participant      `json:"participant"`
	Rank              int                     `json:"rank"`
	TotalParticipants int                     `json:"total_participants"`
	SessionStatus     model.LiveSessionStatus `json:"session_status"`
	CompletedChecks   []int                   `json:"completed_checks"`
	AnsweredQuestions []string                `json:"answered_questions"`
}

// CheckResult is the outcome of an attention check submission.
type CheckResult struct {
	Participant   *model.Participant `json:"participant"`
	Correct       bool               `json:"correct"`
	CorrectLetter string             `json:"correct_letter"`
	Awarded       int                `json:"awarded"`
	Recorded      bool               `json:"recorded"`
}

// AnswerResult is the outcome of a quiz answer submission.
type AnswerResult struct {
	Participant        *model.Participant `json:"participant"`
	Correct            bool               `json:"correct"`
	CorrectChoiceIndex int                `json:"correct_choice_index"`
	Awarded            int                `json:"awarded"`
	Recorded           bool               `json:"recorded"`
}

// Join adds a participant to the session with the given code. A signed-in
// user joins at most once; a repeat returns the existing participant along
// with ErrAlreadyJoined. Guests (nil userID) always get a new participant.
func (s *ParticipantService) Join(ctx context.Context, code, displayName string, userID *string) (*model.Participant, bool, error) {
	name := strings.TrimSpace(displayName)
	if name == "" || utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return nil, false, ErrInvalidDisplayName
	}
	if userID != nil && strings.TrimSpace(*userID) == "" {
		userID = nil
	}

	session, err := s.sessions.Summary(ctx, code)
	if err != nil {
		return nil, false, err
	}

	p := &model.Participant{
		SessionID:   session.ID,
		SessionCode: session.Code,
		UserID:      userID,
		DisplayName: name,
		Phase:       model.PhaseWaiting,
	}
	created, err := s.participants.Create(ctx, p)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Session deleted between lookup and insert.
			return nil, false, ErrSessionNotFound
		}
		return nil, false, fmt.Errorf("join session: %w", err)
	}
	if !created {
		return p, false, ErrAlreadyJoined
	}

	s.events.Publish(ctx, participantEvent(EventParticipantJoined, p))
	s.log.Info().
		Str("participant_id", p.ID.String()).
		Str("code", p.SessionCode).
		Bool("guest", p.IsGuest()).
		Msg("Participant joined")
	return p, true, nil
}

// Get returns a participant by ID.
func (s *ParticipantService) Get(ctx context.Context, id uuid.UUID) (*model.Participant, error) {
	p, err := s.participants.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// Me builds the participant's own state: rank, session status and the
// checks and questions it already finished.
func (s *ParticipantService) Me(ctx context.Context, id uuid.UUID) (*ParticipantState, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.Summary(ctx, p.SessionCode)
	if err != nil {
		return nil, err
	}

	participants, err := s.ListBySessionCode(ctx, p.SessionCode)
	if err != nil {
		return nil, err
	}
	rank, _ := scoring.RankOf(scoring.Leaderboard(participants), p.ID)

	completed, err := s.checks.CompletedOrders(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("completed checks: %w", err)
	}
	answered, err := s.responses.AnsweredQuestionIDs(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("answered questions: %w", err)
	}

	if pos, ok := s.livePosition(ctx, p); ok {
		p.VideoPositionSeconds = pos
	}

	return &ParticipantState{
		Participant:       p,
		Rank:              rank,
		TotalParticipants: len(participants),
		SessionStatus:     session.Status,
		CompletedChecks:   completed,
		AnsweredQuestions: answered,
	}, nil
}

// UpdatePhase moves a participant along the phase DAG after checking the
// edge's gate. Requesting the current phase returns the participant as is.
func (s *ParticipantService) UpdatePhase(ctx context.Context, id uuid.UUID, req *model.UpdatePhaseRequest) (*model.Participant, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Phase == req.Phase {
		return p, nil
	}

	session, err := s.sessions.FindByCode(ctx, p.SessionCode)
	if err != nil {
		return nil, err
	}

	guard := TransitionGuard{
		SessionStatus:        session.Status,
		ChecksTotal:          len(session.Content.AttentionChecks),
		VideoPositionSeconds: req.VideoPositionSeconds,
		VideoDurationSeconds: session.VideoDurationSeconds,
		QuestionsTotal:       len(session.Content.Questions),
	}
	switch req.Phase {
	case model.PhaseQuiz:
		completed, err := s.checks.CompletedOrders(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("completed checks: %w", err)
		}
		guard.ChecksCompleted = len(completed)
		if guard.VideoPositionSeconds == nil {
			if pos, ok := s.livePosition(ctx, p); ok {
				guard.VideoPositionSeconds = &pos
			}
		}
	case model.PhaseCompleted:
		answered, err := s.responses.AnsweredQuestionIDs(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("answered questions: %w", err)
		}
		guard.QuestionsAnswered = len(answered)
	}

	if err := ValidateTransition(p.Phase, req.Phase, guard); err != nil {
		return nil, err
	}

	updated, err := s.participants.UpdatePhase(ctx, p.ID, req.Phase)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("update phase: %w", err)
	}

	s.events.Publish(ctx, participantEvent(EventParticipantUpdated, updated))
	s.log.Debug().
		Str("participant_id", p.ID.String()).
		Str("from", string(p.Phase)).
		Str("to", string(updated.Phase)).
		Msg("Phase changed")
	return updated, nil
}

// AddScore atomically increments a participant's score.
func (s *ParticipantService) AddScore(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	if delta < 0 {
		return 0, ErrNegativeScoreDelta
	}
	score, err := s.participants.AddScore(ctx, id, delta)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrParticipantNotFound
		}
		return 0, fmt.Errorf("add score: %w", err)
	}
	return score, nil
}

// ListBySessionCode returns the session's participants in leaderboard
// order. A missing session is ErrSessionNotFound, never an empty list, so
// pollers can tell an ended session from an empty one.
func (s *ParticipantService) ListBySessionCode(ctx context.Context, code string) ([]model.Participant, error) {
	session, err := s.sessions.Summary(ctx, code)
	if err != nil {
		return nil, err
	}
	participants, err := s.participants.ListBySessionCode(ctx, session.Code)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	scoring.SortParticipants(participants)
	return participants, nil
}

// SubmitCheck scores an attention check answer. Only the first answer per
// check counts; re-deliveries return Recorded=false and award nothing.
func (s *ParticipantService) SubmitCheck(ctx context.Context, id uuid.UUID, order int, choice string) (*CheckResult, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.FindByCode(ctx, p.SessionCode)
	if err != nil {
		return nil, err
	}
	if p.Phase != model.PhaseVideo {
		return nil, ErrWrongPhase
	}
	check, ok := session.Content.CheckByOrder(order)
	if !ok {
		return nil, ErrCheckNotFound
	}

	letter := strings.ToUpper(strings.TrimSpace(choice))
	correct := letter == check.CorrectChoiceLetter
	award := scoring.AttentionCheckAward(correct)

	updated, recorded, err := s.checks.RecordCheck(ctx, &model.CheckCompletion{
		ParticipantID:  p.ID,
		SessionID:      p.SessionID,
		CheckOrder:     order,
		SelectedLetter: letter,
		IsCorrect:      correct,
		Awarded:        award,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("record check: %w", err)
	}
	if !recorded {
		award = 0
	} else {
		s.events.Publish(ctx, participantEvent(EventParticipantUpdated, updated))
	}

	return &CheckResult{
		Participant:   updated,
		Correct:       correct,
		CorrectLetter: check.CorrectChoiceLetter,
		Awarded:       award,
		Recorded:      recorded,
	}, nil
}

// SubmitAnswer logs a quiz answer and scores it. The first answer to a
// question wins. Answering the last question completes the quiz.
func (s *ParticipantService) SubmitAnswer(ctx context.Context, id uuid.UUID, questionID string, choice int) (*AnswerResult, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.FindByCode(ctx, p.SessionCode)
	if err != nil {
		return nil, err
	}
	if p.Phase != model.PhaseQuiz {
		return nil, ErrWrongPhase
	}
	index, question, ok := session.Content.QuestionByID(questionID)
	if !ok {
		return nil, ErrQuestionNotFound
	}

	correct := choice == question.CorrectChoiceIndex
	award := scoring.QuestionAward(correct)

	outcome, err := s.responses.RecordAnswer(ctx, &model.Response{
		SessionID:      p.SessionID,
		SessionCode:    p.SessionCode,
		ParticipantID:  p.ID,
		QuestionID:     question.ID,
		SelectedChoice: choice,
		IsCorrect:      correct,
	}, award, index, len(session.Content.Questions))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("record answer: %w", err)
	}
	if !outcome.Recorded {
		award = 0
	} else {
		s.events.Publish(ctx, participantEvent(EventParticipantUpdated, outcome.Participant))
	}

	return &AnswerResult{
		Participant:        outcome.Participant,
		Correct:            correct,
		CorrectChoiceIndex: question.CorrectChoiceIndex,
		Awarded:            award,
		Recorded:           outcome.Recorded,
	}, nil
}

// ListResponses returns the session's response log to its host.
func (s *ParticipantService) ListResponses(ctx context.Context, hostID, code string) ([]model.Response, error) {
	session, err := s.sessions.Summary(ctx, code)
	if err != nil {
		return nil, err
	}
	if session.HostID != hostID {
		return nil, ErrNotSessionHost
	}
	responses, err := s.responses.ListBySessionCode(ctx, session.Code)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return responses, nil
}

// livePosition reads the autosaved playback position, which is fresher
// than the persisted column while the progress worker catches up.
func (s *ParticipantService) livePosition(ctx context.Context, p *model.Participant) (float64, bool) {
	raw, err := s.rdb.HGet(ctx, config.CacheKey.SessionProgressKey(p.SessionCode), p.ID.String()).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("Read live position failed")
		}
		return 0, false
	}
	pos, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return pos, true
}
