package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/livesession-backend/internal/model"
)

const participantColumns = `id, session_id, session_code, user_id, display_name, score, phase,
	current_question_index, video_position_seconds, joined_at, updated_at`

// ParticipantRepository handles participant data access.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

// Create inserts a participant. For registered users the partial unique
// index on (session_id, user_id) decides the race: the loser gets the
// existing row back and created=false. Guests always insert.
func (r *ParticipantRepository) Create(ctx context.Context, p *model.Participant) (bool, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO participants (session_id, session_code, user_id, display_name, score, phase, current_question_index)
		 VALUES ($1, $2, $3, $4, 0, $5, 0)
		 ON CONFLICT (session_id, user_id) WHERE user_id IS NOT NULL DO NOTHING
		 RETURNING `+participantColumns,
		p.SessionID, p.SessionCode, p.UserID, p.DisplayName, model.PhaseWaiting,
	).Scan(participantDest(p)...)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || p.UserID == nil {
		return false, translate(err)
	}

	existing, err := r.GetBySessionAndUser(ctx, p.SessionID, *p.UserID)
	if err != nil {
		return false, err
	}
	*p = *existing
	return false, nil
}

// GetByID retrieves a participant by id.
func (r *ParticipantRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Participant, error) {
	p := &model.Participant{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = $1`, id,
	).Scan(participantDest(p)...)
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// GetBySessionAndUser retrieves a registered user's membership in a session.
func (r *ParticipantRepository) GetBySessionAndUser(ctx context.Context, sessionID uuid.UUID, userID string) (*model.Participant, error) {
	p := &model.Participant{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants
		 WHERE session_id = $1 AND user_id = $2`, sessionID, userID,
	).Scan(participantDest(p)...)
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// ListBySessionCode returns all participants in leaderboard order.
func (r *ParticipantRepository) ListBySessionCode(ctx context.Context, code string) ([]model.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM participants
		 WHERE session_code = $1
		 ORDER BY score DESC, joined_at ASC, id ASC`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(participantDest(&p)...); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// UpdatePhase sets the participant's phase.
func (r *ParticipantRepository) UpdatePhase(ctx context.Context, id uuid.UUID, phase model.Phase) (*model.Participant, error) {
	p := &model.Participant{}
	err := r.pool.QueryRow(ctx,
		`UPDATE participants SET phase = $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+participantColumns, id, phase,
	).Scan(participantDest(p)...)
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// AddScore atomically increments the score and returns the new total.
func (r *ParticipantRepository) AddScore(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var score int
	err := r.pool.QueryRow(ctx,
		`UPDATE participants SET score = score + $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING score`, id, delta,
	).Scan(&score)
	if err != nil {
		return 0, translate(err)
	}
	return score, nil
}

// UpdatePositions writes the latest playback position of each participant
// in one statement. Participants deleted in the meantime are skipped.
func (r *ParticipantRepository) UpdatePositions(ctx context.Context, positions map[uuid.UUID]float64) (int64, error) {
	if len(positions) == 0 {
		return 0, nil
	}
	ids := make([]uuid.UUID, 0, len(positions))
	values := make([]float64, 0, len(positions))
	for id, pos := range positions {
		ids = append(ids, id)
		values = append(values, pos)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE participants AS p
		 SET video_position_seconds = v.pos, updated_at = NOW()
		 FROM UNNEST($1::uuid[], $2::float8[]) AS v(id, pos)
		 WHERE p.id = v.id`, ids, values,
	)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

func participantDest(p *model.Participant) []any {
	return []any{
		&p.ID, &p.SessionID, &p.SessionCode, &p.UserID, &p.DisplayName, &p.Score, &p.Phase,
		&p.CurrentQuestionIndex, &p.VideoPositionSeconds, &p.JoinedAt, &p.UpdatedAt,
	}
}
