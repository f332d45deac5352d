package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/config"
	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/repository"
)

// LiveSessionService is the session registry: creation with a unique join
// code, forward-only status, and cascade deletion on end.
type LiveSessionService struct {
	sessions     SessionStore
	cache        *ContentCache
	events       *EventPublisher
	rdb          *redis.Client
	newCode      CodeGenerator
	codeAttempts int
	log          zerolog.Logger
}

// NewLiveSessionService creates a new LiveSessionService.
func NewLiveSessionService(
	sessions SessionStore,
	cache *ContentCache,
	events *EventPublisher,
	rdb *redis.Client,
	codeAttempts int,
	log zerolog.Logger,
) *LiveSessionService {
	if codeAttempts < 1 {
		codeAttempts = DefaultJoinCodeAttempts
	}
	return &LiveSessionService{
		sessions:     sessions,
		cache:        cache,
		events:       events,
		rdb:          rdb,
		newCode:      RandomJoinCode,
		codeAttempts: codeAttempts,
		log:          log.With().Str("component", "live_session_service").Logger(),
	}
}

// SetCodeGenerator replaces the join code source.
func (s *LiveSessionService) SetCodeGenerator(gen CodeGenerator) {
	s.newCode = gen
}

// CreateSession hosts a new session in the waiting state. Join code
// collisions are retried with a fresh code; the database's unique index is
// the arbiter, so concurrent creators can never share a code.
func (s *LiveSessionService) CreateSession(ctx context.Context, hostID string, req *model.CreateLiveSessionRequest) (*model.LiveSession, error) {
	if strings.TrimSpace(hostID) == "" {
		return nil, errors.New("host id is required")
	}

	content := cloneContent(&req.Content)
	for i := range content.AttentionChecks {
		content.AttentionChecks[i].CorrectChoiceLetter = strings.ToUpper(strings.TrimSpace(content.AttentionChecks[i].CorrectChoiceLetter))
	}
	content.SortChecks()
	if err := ValidateContent(&content, req.VideoDurationSeconds); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.codeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, err
		}

		session := &model.LiveSession{
			Code:                 CanonicalCode(code),
			HostID:               hostID,
			Status:               model.LiveSessionStatusWaiting,
			Content:              content,
			VideoURL:             req.VideoURL,
			VideoDurationSeconds: req.VideoDurationSeconds,
		}

		err = s.sessions.Create(ctx, session)
		if err == nil {
			s.cache.Set(ctx, session.ID, &session.Content)
			s.log.Info().
				Str("session_id", session.ID.String()).
				Str("code", session.Code).
				Str("host_id", hostID).
				Int("attempt", attempt).
				Msg("Live session created")
			return session, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("create session: %w", err)
		}
		s.log.Debug().Str("code", session.Code).Int("attempt", attempt).Msg("Join code collision, retrying")
	}

	return nil, &DuplicateCodeError{Attempts: s.codeAttempts}
}

// Summary looks up a session by join code without loading its content.
// The lookup is case-insensitive.
func (s *LiveSessionService) Summary(ctx context.Context, code string) (*model.LiveSession, error) {
	code = CanonicalCode(code)
	if !ValidJoinCode(code) {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessions.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// FindByCode returns the full session. An ended session is ErrSessionNotFound.
func (s *LiveSessionService) FindByCode(ctx context.Context, code string) (*model.LiveSession, error) {
	session, err := s.Summary(ctx, code)
	if err != nil {
		return nil, err
	}

	content, err := s.cache.Get(ctx, session.ID, func(ctx context.Context) (*model.SessionContent, error) {
		return s.sessions.GetContent(ctx, session.ID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get content: %w", err)
	}
	session.Content = *content
	return session, nil
}

// Owned returns the full session if hostID hosts it.
func (s *LiveSessionService) Owned(ctx context.Context, hostID, code string) (*model.LiveSession, error) {
	session, err := s.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if session.HostID != hostID {
		return nil, ErrNotSessionHost
	}
	return session, nil
}

// ListByHost returns the host's live sessions without content.
func (s *LiveSessionService) ListByHost(ctx context.Context, hostID string) ([]model.LiveSession, error) {
	sessions, err := s.sessions.ListByHost(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// SetStatus moves a session forward. waiting → active is the only stored
// transition; repeating the current status is a no-op and "ended" deletes
// the session. The returned session has no content loaded.
func (s *LiveSessionService) SetStatus(ctx context.Context, hostID, code string, status model.LiveSessionStatus) (*model.LiveSession, error) {
	session, err := s.Summary(ctx, code)
	if err != nil {
		return nil, err
	}
	if session.HostID != hostID {
		return nil, ErrNotSessionHost
	}

	switch status {
	case model.LiveSessionStatusEnded:
		if err := s.DeleteSession(ctx, session.ID); err != nil {
			return nil, err
		}
		session.Status = model.LiveSessionStatusEnded
		return session, nil

	case session.Status:
		return session, nil

	case model.LiveSessionStatusActive:
		ok, err := s.sessions.UpdateStatus(ctx, session.ID, model.LiveSessionStatusWaiting, model.LiveSessionStatusActive)
		if err != nil {
			return nil, fmt.Errorf("update status: %w", err)
		}
		if !ok {
			// Lost a race: either someone else activated it or it was ended.
			current, err := s.Summary(ctx, session.Code)
			if err != nil {
				return nil, err
			}
			if current.Status != model.LiveSessionStatusActive {
				return nil, ErrInvalidStatusTransition
			}
			return current, nil
		}
		session.Status = model.LiveSessionStatusActive

		s.events.Publish(ctx, Event{Type: EventSessionStatus, SessionCode: session.Code, Status: session.Status})
		s.log.Info().Str("code", session.Code).Msg("Live session activated")
		return session, nil

	default:
		return nil, ErrInvalidStatusTransition
	}
}

// EndSession deletes a session the caller hosts.
func (s *LiveSessionService) EndSession(ctx context.Context, hostID, code string) error {
	session, err := s.Summary(ctx, code)
	if err != nil {
		return err
	}
	if session.HostID != hostID {
		return ErrNotSessionHost
	}
	return s.DeleteSession(ctx, session.ID)
}

// DeleteSession removes a session with its participants, responses and
// check records. Cache and progress keys are cleaned up best-effort.
func (s *LiveSessionService) DeleteSession(ctx context.Context, id uuid.UUID) error {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("get session: %w", err)
	}

	if err := s.sessions.DeleteCascade(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("delete session: %w", err)
	}

	if err := s.cache.Drop(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("code", session.Code).Msg("Content cache cleanup failed")
	}
	if err := s.rdb.Del(ctx, config.CacheKey.SessionProgressKey(session.Code)).Err(); err != nil {
		s.log.Warn().Err(err).Str("code", session.Code).Msg("Progress cleanup failed")
	}

	s.events.Publish(ctx, Event{Type: EventSessionEnded, SessionCode: session.Code, Status: model.LiveSessionStatusEnded})
	s.log.Info().Str("session_id", id.String()).Str("code", session.Code).Msg("Live session ended")
	return nil
}

func cloneContent(c *model.SessionContent) model.SessionContent {
	out := model.SessionContent{
		Questions:       make([]model.Question, len(c.Questions)),
		AttentionChecks: make([]model.AttentionCheck, len(c.AttentionChecks)),
		Inquiry:         c.Inquiry,
	}
	copy(out.Questions, c.Questions)
	copy(out.AttentionChecks, c.AttentionChecks)
	return out
}
