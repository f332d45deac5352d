package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/livesession-backend/internal/model"
)

// ScrubRepository stores the anti-scrub log. Writes come from the scrub
// worker in batches.
type ScrubRepository struct {
	pool *pgxpool.Pool
}

// NewScrubRepository creates a new ScrubRepository.
func NewScrubRepository(pool *pgxpool.Pool) *ScrubRepository {
	return &ScrubRepository{pool: pool}
}

// CountsBySession returns snap-back counts per participant.
func (r *ScrubRepository) CountsBySession(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]int, error) {
	return countBy(ctx, r.pool,
		`SELECT participant_id, COUNT(*) FROM scrub_violations
		 WHERE session_id = $1
		 GROUP BY participant_id`, sessionID)
}

// BulkInsert copies a batch of violations in one round trip. The batch
// fails as a whole if any row is rejected.
func (r *ScrubRepository) BulkInsert(ctx context.Context, batch []model.ScrubViolation) error {
	rows := make([][]any, 0, len(batch))
	for _, v := range batch {
		rows = append(rows, []any{v.SessionID, v.ParticipantID, v.FromSeconds, v.ToSeconds, v.RecordedAt})
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"scrub_violations"},
		[]string{"session_id", "participant_id", "from_seconds", "to_seconds", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert stores a single violation. Errors are returned untranslated so
// callers can tell a vanished participant from an outage.
func (r *ScrubRepository) Insert(ctx context.Context, v *model.ScrubViolation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO scrub_violations (session_id, participant_id, from_seconds, to_seconds, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		v.SessionID, v.ParticipantID, v.FromSeconds, v.ToSeconds, v.RecordedAt,
	)
	return err
}
