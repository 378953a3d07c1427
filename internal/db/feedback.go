package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

const feedbackColumns = `id, interview_id, user_id, total_score, category_scores, strengths,
	areas_for_improvement, recommendations, final_assessment, created_at`

func scanFeedback(row pgx.Row) (*types.Feedback, error) {
	var fb types.Feedback
	var categories, strengths, areas, recommendations []byte
	err := row.Scan(&fb.ID, &fb.InterviewID, &fb.UserID, &fb.TotalScore, &categories, &strengths,
		&areas, &recommendations, &fb.FinalAssessment, &fb.CreatedAt)
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw  []byte
		dest interface{}
	}{
		{categories, &fb.CategoryScores},
		{strengths, &fb.Strengths},
		{areas, &fb.AreasForImprovement},
		{recommendations, &fb.Recommendations},
	} {
		if err := json.Unmarshal(f.raw, f.dest); err != nil {
			return nil, fmt.Errorf("failed to decode feedback: %w", err)
		}
	}
	return &fb, nil
}

// GetFeedbackByInterview returns the interview's feedback, or nil.
func (db *DB) GetFeedbackByInterview(ctx context.Context, interviewID uuid.UUID) (*types.Feedback, error) {
	fb, err := scanFeedback(db.pool.QueryRow(ctx,
		`SELECT `+feedbackColumns+` FROM feedback WHERE interview_id = $1`, interviewID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return fb, nil
}

// CreateFeedback inserts fb unless the interview already has feedback, in which
// case the existing record is returned with created=false.
func (db *DB) CreateFeedback(ctx context.Context, fb *types.Feedback) (*types.Feedback, bool, error) {
	categories, err := json.Marshal(fb.CategoryScores)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal category scores: %w", err)
	}
	strengths, err := marshalStringList("strengths", fb.Strengths)
	if err != nil {
		return nil, false, err
	}
	areas, err := marshalStringList("areas for improvement", fb.AreasForImprovement)
	if err != nil {
		return nil, false, err
	}
	recommendations, err := marshalStringList("recommendations", fb.Recommendations)
	if err != nil {
		return nil, false, err
	}

	stored, err := scanFeedback(db.pool.QueryRow(ctx,
		`INSERT INTO feedback (id, interview_id, user_id, total_score, category_scores, strengths,
		                       areas_for_improvement, recommendations, final_assessment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (interview_id) DO NOTHING
		 RETURNING `+feedbackColumns,
		fb.ID, fb.InterviewID, fb.UserID, fb.TotalScore, categories, strengths,
		areas, recommendations, fb.FinalAssessment, fb.CreatedAt,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert feedback: %w", err)
	}

	existing, err := db.GetFeedbackByInterview(ctx, fb.InterviewID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("feedback for interview %s vanished after conflict", fb.InterviewID)
	}
	return existing, false, nil
}

// LinkFeedback sets the interview's feedback reference if it is still unset.
func (db *DB) LinkFeedback(ctx context.Context, interviewID, feedbackID uuid.UUID) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE interviews SET feedback_id = $2, updated_at = NOW()
		 WHERE id = $1 AND feedback_id IS NULL`,
		interviewID, feedbackID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to link feedback: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// marshalStringList encodes a JSONB list column; nil encodes as [].
func marshalStringList(field string, s []string) ([]byte, error) {
	b, err := json.Marshal(nonNilStrings(s))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", field, err)
	}
	return b, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
