package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/repository"
)

// SessionStore is the persistence the session registry needs.
// Implemented by repository.LiveSessionRepository.
type SessionStore interface {
	Create(ctx context.Context, s *model.LiveSession) error
	GetByCode(ctx context.Context, code string) (*model.LiveSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.LiveSession, error)
	GetContent(ctx context.Context, id uuid.UUID) (*model.SessionContent, error)
	ListByHost(ctx context.Context, hostID string) ([]model.LiveSession, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.LiveSessionStatus) (bool, error)
	DeleteCascade(ctx context.Context, id uuid.UUID) error
}

// ParticipantStore is implemented by repository.ParticipantRepository.
type ParticipantStore interface {
	Create(ctx context.Context, p *model.Participant) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Participant, error)
	ListBySessionCode(ctx context.Context, code string) ([]model.Participant, error)
	UpdatePhase(ctx context.Context, id uuid.UUID, phase model.Phase) (*model.Participant, error)
	AddScore(ctx context.Context, id uuid.UUID, delta int) (int, error)
}

// ResponseStore is implemented by repository.ResponseRepository.
type ResponseStore interface {
	RecordAnswer(ctx context.Context, resp *model.Response, award, questionIndex, totalQuestions int) (*repository.AnswerOutcome, error)
	ListBySessionCode(ctx context.Context, code string) ([]model.Response, error)
	AnsweredQuestionIDs(ctx context.Context, participantID uuid.UUID) ([]string, error)
}

// CheckStore is implemented by repository.CheckCompletionRepository.
type CheckStore interface {
	RecordCheck(ctx context.Context, cc *model.CheckCompletion) (*model.Participant, bool, error)
	CompletedOrders(ctx context.Context, participantID uuid.UUID) ([]int, error)
	CountsBySession(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]int, error)
}

// ScrubStore is implemented by repository.ScrubRepository.
type ScrubStore interface {
	CountsBySession(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]int, error)
}
