package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/livesession-backend/internal/model"
)

// Content is immutable after creation and loaded separately so it can be cached.
const liveSessionColumns = `id, code, host_id, status, video_url, video_duration_seconds, created_at, updated_at`

// LiveSessionRepository handles live session data access.
type LiveSessionRepository struct {
	pool *pgxpool.Pool
}

// NewLiveSessionRepository creates a new LiveSessionRepository.
func NewLiveSessionRepository(pool *pgxpool.Pool) *LiveSessionRepository {
	return &LiveSessionRepository{pool: pool}
}

// Create inserts a new session. A taken join code yields ErrDuplicate.
func (r *LiveSessionRepository) Create(ctx context.Context, s *model.LiveSession) error {
	content, err := json.Marshal(s.Content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO live_sessions (code, host_id, status, content, video_url, video_duration_seconds)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		 RETURNING id, created_at, updated_at`,
		s.Code, s.HostID, s.Status, string(content), s.VideoURL, s.VideoDurationSeconds,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return translate(err)
}

// GetByCode retrieves a session (without content) by its canonical join code.
func (r *LiveSessionRepository) GetByCode(ctx context.Context, code string) (*model.LiveSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+liveSessionColumns+` FROM live_sessions WHERE code = $1`, code)
	return scanLiveSession(row)
}

// GetByID retrieves a session (without content) by id.
func (r *LiveSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.LiveSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+liveSessionColumns+` FROM live_sessions WHERE id = $1`, id)
	return scanLiveSession(row)
}

// GetContent loads the content bundle of a session.
func (r *LiveSessionRepository) GetContent(ctx context.Context, id uuid.UUID) (*model.SessionContent, error) {
	var raw []byte
	if err := r.pool.QueryRow(ctx,
		`SELECT content FROM live_sessions WHERE id = $1`, id,
	).Scan(&raw); err != nil {
		return nil, translate(err)
	}
	content := &model.SessionContent{}
	if err := json.Unmarshal(raw, content); err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}
	return content, nil
}

// ListByHost returns the host's live sessions (without content), newest first.
func (r *LiveSessionRepository) ListByHost(ctx context.Context, hostID string) ([]model.LiveSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+liveSessionColumns+` FROM live_sessions
		 WHERE host_id = $1
		 ORDER BY created_at DESC`, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.LiveSession
	for rows.Next() {
		s, err := scanLiveSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// UpdateStatus moves a session from one status to another. The conditional
// WHERE makes concurrent transitions safe; false means the session was not
// in the expected status.
func (r *LiveSessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.LiveSessionStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE live_sessions SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteCascade removes the session and everything referencing it in one
// transaction. Children go first so a partial failure never strands them.
func (r *LiveSessionRepository) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{
		`DELETE FROM scrub_violations WHERE session_id = $1`,
		`DELETE FROM check_completions WHERE session_id = $1`,
		`DELETE FROM responses WHERE session_id = $1`,
		`DELETE FROM participants WHERE session_id = $1`,
	} {
		if _, err := tx.Exec(ctx, stmt, id); err != nil {
			return fmt.Errorf("cascade delete: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, `DELETE FROM live_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func scanLiveSession(row pgx.Row) (*model.LiveSession, error) {
	s := &model.LiveSession{}
	err := row.Scan(&s.ID, &s.Code, &s.HostID, &s.Status,
		&s.VideoURL, &s.VideoDurationSeconds, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}
