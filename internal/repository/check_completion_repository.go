package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/livesession-backend/internal/model"
)

// CheckCompletionRepository stores the server-side checksCompleted set.
type CheckCompletionRepository struct {
	pool *pgxpool.Pool
}

// NewCheckCompletionRepository creates a new CheckCompletionRepository.
func NewCheckCompletionRepository(pool *pgxpool.Pool) *CheckCompletionRepository {
	return &CheckCompletionRepository{pool: pool}
}

// RecordCheck marks a check completed and applies its award once.
// The primary key (participant_id, check_order) rejects re-deliveries;
// in that case the score is left alone and recorded=false.
func (r *CheckCompletionRepository) RecordCheck(ctx context.Context, cc *model.CheckCompletion) (*model.Participant, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	recorded := true
	err = tx.QueryRow(ctx,
		`INSERT INTO check_completions (participant_id, session_id, check_order, selected_letter, is_correct, awarded)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (participant_id, check_order) DO NOTHING
		 RETURNING created_at`,
		cc.ParticipantID, cc.SessionID, cc.CheckOrder, cc.SelectedLetter, cc.IsCorrect, cc.Awarded,
	).Scan(&cc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		recorded = false
	} else if err != nil {
		return nil, false, translate(err)
	}

	p := &model.Participant{}
	if recorded {
		err = tx.QueryRow(ctx,
			`UPDATE participants SET score = score + $2, updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+participantColumns, cc.ParticipantID, cc.Awarded,
		).Scan(participantDest(p)...)
	} else {
		err = tx.QueryRow(ctx,
			`SELECT `+participantColumns+` FROM participants WHERE id = $1`, cc.ParticipantID,
		).Scan(participantDest(p)...)
	}
	if err != nil {
		return nil, false, translate(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return p, recorded, nil
}

// CompletedOrders returns the check orders a participant has answered.
func (r *CheckCompletionRepository) CompletedOrders(ctx context.Context, participantID uuid.UUID) ([]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT check_order FROM check_completions
		 WHERE participant_id = $1
		 ORDER BY check_order`, participantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

// CountsBySession returns completed check counts per participant.
func (r *CheckCompletionRepository) CountsBySession(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]int, error) {
	return countBy(ctx, r.pool,
		`SELECT participant_id, COUNT(*) FROM check_completions
		 WHERE session_id = $1
		 GROUP BY participant_id`, sessionID)
}

func countBy(ctx context.Context, pool *pgxpool.Pool, query string, sessionID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
