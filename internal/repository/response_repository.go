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

// ResponseRepository handles the quiz response log.
type ResponseRepository struct {
	pool *pgxpool.Pool
}

// NewResponseRepository creates a new ResponseRepository.
func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepository {
	return &ResponseRepository{pool: pool}
}

// AnswerOutcome describes what RecordAnswer did.
type AnswerOutcome struct {
	Participant *model.Participant
	// Recorded is false when the question had already been answered.
	Recorded bool
	Response  *model.Response
}

// RecordAnswer logs a response and applies its award in one transaction.
// The participant row is locked first so a double submit is serialized;
// the unique (participant_id, question_id) index makes the first answer win.
// When the participant has answered totalQuestions questions the phase
// moves to completed.
func (r *ResponseRepository) RecordAnswer(ctx context.Context, resp *model.Response, award, questionIndex, totalQuestions int) (*AnswerOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked int
	if err := tx.QueryRow(ctx,
		`SELECT 1 FROM participants WHERE id = $1 FOR UPDATE`, resp.ParticipantID,
	).Scan(&locked); err != nil {
		return nil, translate(err)
	}

	out := &AnswerOutcome{Participant: &model.Participant{}}
	err = tx.QueryRow(ctx,
		`INSERT INTO responses (session_id, session_code, participant_id, question_id, selected_choice, is_correct)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (participant_id, question_id) DO NOTHING
		 RETURNING id, created_at`,
		resp.SessionID, resp.SessionCode, resp.ParticipantID, resp.QuestionID, resp.SelectedChoice, resp.IsCorrect,
	).Scan(&resp.ID, &resp.CreatedAt)

	switch {
	case err == nil:
		out.Recorded = true
		out.Response = resp

		var answered int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM responses WHERE participant_id = $1`, resp.ParticipantID,
		).Scan(&answered); err != nil {
			return nil, fmt.Errorf("count responses: %w", err)
		}

		err = tx.QueryRow(ctx,
			`UPDATE participants
			 SET score = score + $2,
			     current_question_index = GREATEST(current_question_index, $3),
			     phase = CASE WHEN $4 THEN 'completed' ELSE phase END,
			     updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+participantColumns,
			resp.ParticipantID, award, questionIndex+1, answered >= totalQuestions,
		).Scan(participantDest(out.Participant)...)
		if err != nil {
			return nil, translate(err)
		}

	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx,
			`SELECT `+participantColumns+` FROM participants WHERE id = $1`, resp.ParticipantID,
		).Scan(participantDest(out.Participant)...)
		if err != nil {
			return nil, translate(err)
		}

	default:
		return nil, translate(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// ListBySessionCode returns every logged response for a session.
func (r *ResponseRepository) ListBySessionCode(ctx context.Context, code string) ([]model.Response, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, session_code, participant_id, question_id, selected_choice, is_correct, created_at
		 FROM responses
		 WHERE session_code = $1
		 ORDER BY created_at ASC`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []model.Response
	for rows.Next() {
		var resp model.Response
		if err := rows.Scan(&resp.ID, &resp.SessionID, &resp.SessionCode, &resp.ParticipantID,
			&resp.QuestionID, &resp.SelectedChoice, &resp.IsCorrect, &resp.CreatedAt); err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

// AnsweredQuestionIDs returns the question ids a participant has answered.
func (r *ResponseRepository) AnsweredQuestionIDs(ctx context.Context, participantID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id FROM responses WHERE participant_id = $1`, participantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
