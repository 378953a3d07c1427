package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

const reviewColumns = `id, interview_id, user_id, admin_id, attempt_number, question_reviews,
	total_score, status, reviewed_at, submitted_at, created_at`

func scanReview(row pgx.Row) (*types.Review, error) {
	var r types.Review
	var qrs []byte
	var status string
	err := row.Scan(&r.ID, &r.InterviewID, &r.UserID, &r.AdminID, &r.AttemptNumber, &qrs,
		&r.TotalScore, &status, &r.ReviewedAt, &r.SubmittedAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = types.ReviewStatus(status)
	if err := json.Unmarshal(qrs, &r.QuestionReviews); err != nil {
		return nil, fmt.Errorf("failed to decode question reviews: %w", err)
	}
	return &r, nil
}

// GetReviewByInterview returns the interview's review, or nil.
func (db *DB) GetReviewByInterview(ctx context.Context, interviewID uuid.UUID) (*types.Review, error) {
	r, err := scanReview(db.pool.QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE interview_id = $1`, interviewID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return r, nil
}

// UpdateReview runs fn against the current review while holding the interview row
// lock, then stores the result. Reviewers racing on one interview are serialised.
func (db *DB) UpdateReview(ctx context.Context, interviewID uuid.UUID, fn func(current *types.Review) (*types.Review, error)) (*types.Review, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM interviews WHERE id = $1 FOR UPDATE`, interviewID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &types.NotFoundError{Entity: "interview", ID: interviewID.String()}
		}
		return nil, fmt.Errorf("failed to lock interview: %w", err)
	}

	current, err := scanReview(tx.QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE interview_id = $1`, interviewID,
	))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to load review: %w", err)
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	qrs, err := json.Marshal(next.QuestionReviews)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal question reviews: %w", err)
	}
	stored, err := scanReview(tx.QueryRow(ctx,
		`INSERT INTO reviews (id, interview_id, user_id, admin_id, attempt_number, question_reviews,
		                      total_score, status, reviewed_at, submitted_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (interview_id) DO UPDATE SET
		     admin_id = EXCLUDED.admin_id,
		     question_reviews = EXCLUDED.question_reviews,
		     total_score = EXCLUDED.total_score,
		     status = EXCLUDED.status,
		     reviewed_at = EXCLUDED.reviewed_at,
		     submitted_at = EXCLUDED.submitted_at
		 WHERE reviews.status = 'DRAFT'
		 RETURNING `+reviewColumns,
		next.ID, next.InterviewID, next.UserID, next.AdminID, next.AttemptNumber, qrs,
		next.TotalScore, string(next.Status), next.ReviewedAt, next.SubmittedAt, next.CreatedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) && current != nil {
			return nil, &types.AlreadySubmittedError{InterviewID: interviewID, ReviewID: current.ID}
		}
		return nil, fmt.Errorf("failed to save review: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit review: %w", err)
	}
	return stored, nil
}

// ListSubmissions pages COMPLETED interviews with their review state, newest first.
func (db *DB) ListSubmissions(ctx context.Context, filter types.SubmissionFilter) (*types.SubmissionPage, error) {
	where := []string{"i.status = 'COMPLETED'"}
	var args []interface{}
	argNum := 1

	if len(filter.Levels) > 0 {
		where = append(where, fmt.Sprintf("i.level = ANY($%d)", argNum))
		args = append(args, filter.Levels)
		argNum++
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(i.id::text ILIKE $%d OR i.user_id::text ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}
	switch filter.Status {
	case types.ReviewFilterPending:
		where = append(where, "r.id IS NULL")
	case types.ReviewFilterDraft:
		where = append(where, "r.status = 'DRAFT'")
	case types.ReviewFilterSubmitted:
		where = append(where, "r.status = 'SUBMITTED'")
	}
	from := ` FROM interviews i LEFT JOIN reviews r ON r.interview_id = i.id WHERE ` + strings.Join(where, " AND ")

	page := &types.SubmissionPage{Items: []types.Submission{}, Page: filter.Page, PageSize: filter.PageSize}
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*)`+from, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}

	query := `SELECT i.id, i.user_id, i.level, i.mode, i.completed_at, r.id, r.status, r.total_score` + from +
		fmt.Sprintf(" ORDER BY i.completed_at DESC, i.id LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s types.Submission
		var mode string
		var status *string
		if err := rows.Scan(&s.InterviewID, &s.UserID, &s.Level, &mode, &s.CompletedAt,
			&s.ReviewID, &status, &s.TotalScore); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		s.Mode = types.Mode(mode)
		if status != nil {
			rs := types.ReviewStatus(*status)
			s.ReviewStatus = &rs
			s.HasReview = true
		}
		page.Items = append(page.Items, s)
	}
	return page, rows.Err()
}
