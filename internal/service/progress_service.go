package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/config"
	"github.com/stemsi/livesession-backend/internal/model"
)

// ProgressTTL bounds how long live positions outlive an abandoned session.
const ProgressTTL = 12 * time.Hour

// ErrInvalidScrub is returned when a scrub report does not describe a
// backward snap.
var ErrInvalidScrub = errors.New("scrub must snap back to an earlier position")

// ProgressService keeps the hot playback state in Redis and queues it for
// the persistence workers.
type ProgressService struct {
	participants *ParticipantService
	sessions     *LiveSessionService
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewProgressService creates a new ProgressService.
func NewProgressService(participants *ParticipantService, sessions *LiveSessionService, rdb *redis.Client, log zerolog.Logger) *ProgressService {
	return &ProgressService{
		participants: participants,
		sessions:     sessions,
		rdb:          rdb,
		log:          log.With().Str("component", "progress_service").Logger(),
	}
}

// SaveProgress records the participant's playback position. The position
// is clamped to the video length.
func (s *ProgressService) SaveProgress(ctx context.Context, id uuid.UUID, position float64) (float64, error) {
	p, err := s.participants.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	session, err := s.sessions.Summary(ctx, p.SessionCode)
	if err != nil {
		return 0, err
	}

	if position < 0 {
		position = 0
	}
	if position > session.VideoDurationSeconds {
		position = session.VideoDurationSeconds
	}

	key := config.CacheKey.SessionProgressKey(p.SessionCode)
	payload, err := json.Marshal(model.ProgressUpdate{
		ParticipantID:   p.ID,
		SessionCode:     p.SessionCode,
		PositionSeconds: position,
		At:              time.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("marshal progress: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, p.ID.String(), strconv.FormatFloat(position, 'f', 3, 64))
	pipe.Expire(ctx, key, ProgressTTL)
	pipe.RPush(ctx, config.WorkerKey.PersistProgressQueue, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("save progress: %w", err)
	}
	return position, nil
}

// ReportScrub queues an anti-scrub snap-back for the violation log.
func (s *ProgressService) ReportScrub(ctx context.Context, id uuid.UUID, from, to float64) error {
	if from <= to {
		return ErrInvalidScrub
	}
	p, err := s.participants.Get(ctx, id)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(model.ScrubViolation{
		SessionID:     p.SessionID,
		ParticipantID: p.ID,
		FromSeconds:   from,
		ToSeconds:     to,
		RecordedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal scrub: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistScrubsQueue, payload).Err(); err != nil {
		return fmt.Errorf("queue scrub: %w", err)
	}

	s.log.Debug().
		Str("participant_id", p.ID.String()).
		Float64("from", from).
		Float64("to", to).
		Msg("Scrub reported")
	return nil
}

// Positions returns every live playback position of a session.
func (s *ProgressService) Positions(ctx context.Context, code string) (map[uuid.UUID]float64, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.SessionProgressKey(CanonicalCode(code))).Result()
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	positions := make(map[uuid.UUID]float64, len(raw))
	for k, v := range raw {
		id, err := uuid.Parse(k)
		if err != nil {
			continue
		}
		pos, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		positions[id] = pos
	}
	return positions, nil
}
