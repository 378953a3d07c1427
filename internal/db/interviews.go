package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

const interviewColumns = `id, user_id, level, mode, status, questions, answers, transcript,
	started_at, completed_at, abandoned_at, abandon_reason, feedback_id, updated_at`

// maxCreateAttempts bounds the insert/select loop in CreateOrGetInProgress when the
// conflicting interview leaves IN_PROGRESS between the two statements.
const maxCreateAttempts = 3

func scanInterview(row pgx.Row) (*types.Interview, error) {
	var iv types.Interview
	var questions, answers, transcript []byte
	var mode, status string
	err := row.Scan(&iv.ID, &iv.UserID, &iv.Level, &mode, &status, &questions, &answers, &transcript,
		&iv.StartedAt, &iv.CompletedAt, &iv.AbandonedAt, &iv.AbandonReason, &iv.FeedbackID, &iv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	iv.Mode = types.Mode(mode)
	iv.Status = types.InterviewStatus(status)
	if err := json.Unmarshal(questions, &iv.Questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	if err := json.Unmarshal(answers, &iv.Answers); err != nil {
		return nil, fmt.Errorf("failed to decode answers: %w", err)
	}
	if err := json.Unmarshal(transcript, &iv.Transcript); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return &iv, nil
}

func scanInterviews(rows pgx.Rows) ([]types.Interview, error) {
	defer rows.Close()
	var out []types.Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interview: %w", err)
		}
		out = append(out, *iv)
	}
	return out, rows.Err()
}

// CreateOrGetInProgress inserts candidate unless the user already has an IN_PROGRESS
// interview at the level, which is then returned with created=false.
func (db *DB) CreateOrGetInProgress(ctx context.Context, candidate *types.Interview) (*types.Interview, bool, error) {
	questions, err := json.Marshal(candidate.Questions)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal questions: %w", err)
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		iv, err := scanInterview(db.pool.QueryRow(ctx,
			`INSERT INTO interviews (id, user_id, level, mode, status, questions, answers, transcript, started_at, updated_at)
			 VALUES ($1, $2, $3, $4, 'IN_PROGRESS', $5, '[]'::jsonb, '[]'::jsonb, $6, $6)
			 ON CONFLICT (user_id, level) WHERE status = 'IN_PROGRESS' DO NOTHING
			 RETURNING `+interviewColumns,
			candidate.ID, candidate.UserID, candidate.Level, string(candidate.Mode), questions, candidate.StartedAt,
		))
		if err == nil {
			return iv, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("failed to insert interview: %w", err)
		}

		existing, err := db.FindInProgress(ctx, candidate.UserID, candidate.Level)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	return nil, false, fmt.Errorf("failed to create interview for user %s level %d: in-progress row kept changing", candidate.UserID, candidate.Level)
}

// FindInProgress returns the user's IN_PROGRESS interview at level, or nil.
func (db *DB) FindInProgress(ctx context.Context, userID uuid.UUID, level int) (*types.Interview, error) {
	iv, err := scanInterview(db.pool.QueryRow(ctx,
		`SELECT `+interviewColumns+` FROM interviews
		 WHERE user_id = $1 AND level = $2 AND status = 'IN_PROGRESS'`,
		userID, level,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find in-progress interview: %w", err)
	}
	return iv, nil
}

// GetInterview returns an interview by id, or nil.
func (db *DB) GetInterview(ctx context.Context, id uuid.UUID) (*types.Interview, error) {
	iv, err := scanInterview(db.pool.QueryRow(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get interview: %w", err)
	}
	return iv, nil
}

// UpsertAnswer replaces or appends the answer for its question while the interview
// is IN_PROGRESS. The row is locked so concurrent answers do not overwrite each other.
func (db *DB) UpsertAnswer(ctx context.Context, id uuid.UUID, answer types.Answer) (*types.Interview, bool, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	iv, err := scanInterview(tx.QueryRow(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE id = $1 FOR UPDATE`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to lock interview: %w", err)
	}
	if iv.Status != types.StatusInProgress {
		return nil, false, nil
	}

	iv.UpsertAnswer(answer)
	answers, err := json.Marshal(iv.Answers)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal answers: %w", err)
	}
	err = tx.QueryRow(ctx,
		`UPDATE interviews SET answers = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		id, answers,
	).Scan(&iv.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update answers: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit answer: %w", err)
	}
	return iv, true, nil
}

// AppendTranscript appends turns in order while the interview is IN_PROGRESS.
func (db *DB) AppendTranscript(ctx context.Context, id uuid.UUID, turns []types.TranscriptTurn) (bool, error) {
	payload, err := json.Marshal(turns)
	if err != nil {
		return false, fmt.Errorf("failed to marshal transcript turns: %w", err)
	}
	result, err := db.pool.Exec(ctx,
		`UPDATE interviews SET transcript = transcript || $2::jsonb, updated_at = NOW()
		 WHERE id = $1 AND status = 'IN_PROGRESS'`,
		id, string(payload),
	)
	if err != nil {
		return false, fmt.Errorf("failed to append transcript: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// CompleteInterview moves an IN_PROGRESS interview to COMPLETED.
func (db *DB) CompleteInterview(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE interviews SET status = 'COMPLETED', completed_at = $2, updated_at = $2
		 WHERE id = $1 AND status = 'IN_PROGRESS'`,
		id, at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete interview: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// AbandonInterview moves an IN_PROGRESS interview to ABANDONED.
func (db *DB) AbandonInterview(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE interviews SET status = 'ABANDONED', abandoned_at = $2, abandon_reason = $3, updated_at = $2
		 WHERE id = $1 AND status = 'IN_PROGRESS'`,
		id, at, types.StringPtr(reason),
	)
	if err != nil {
		return false, fmt.Errorf("failed to abandon interview: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ListStaleInProgress returns IN_PROGRESS interviews of mode last written before the cutoff.
func (db *DB) ListStaleInProgress(ctx context.Context, mode types.Mode, before time.Time, limit int) ([]types.Interview, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+interviewColumns+` FROM interviews
		 WHERE status = 'IN_PROGRESS' AND mode = $1 AND updated_at < $2
		 ORDER BY updated_at
		 LIMIT NULLIF($3, 0)`,
		string(mode), before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale interviews: %w", err)
	}
	return scanInterviews(rows)
}

// ListMissingFeedback returns COMPLETED interviews without a feedback link, oldest first.
func (db *DB) ListMissingFeedback(ctx context.Context, limit int) ([]types.Interview, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+interviewColumns+` FROM interviews
		 WHERE status = 'COMPLETED' AND feedback_id IS NULL
		 ORDER BY completed_at
		 LIMIT NULLIF($1, 0)`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list interviews missing feedback: %w", err)
	}
	return scanInterviews(rows)
}

// CountCompletedBefore counts the user's COMPLETED interviews at level completed at or before at.
func (db *DB) CountCompletedBefore(ctx context.Context, userID uuid.UUID, level int, at time.Time) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM interviews
		 WHERE user_id = $1 AND level = $2 AND status = 'COMPLETED' AND completed_at <= $3`,
		userID, level, at,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed interviews: %w", err)
	}
	return n, nil
}
