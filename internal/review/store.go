// Package review implements the two-phase human grading workflow over completed interviews.
package review

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// Store persists reviews. Lookups return (nil, nil) when nothing matches.
type Store interface {
	// ListSubmissions pages through COMPLETED interviews matching filter, newest first.
	// filter.Page is 1-based; an empty filter.Levels matches every level.
	ListSubmissions(ctx context.Context, filter types.SubmissionFilter) (*types.SubmissionPage, error)
	GetInterview(ctx context.Context, id uuid.UUID) (*types.Interview, error)
	GetReviewByInterview(ctx context.Context, interviewID uuid.UUID) (*types.Review, error)
	// UpdateReview runs fn against the current review (nil if none) while holding the
	// interview's review exclusively, and stores whatever fn returns.
	UpdateReview(ctx context.Context, interviewID uuid.UUID, fn func(current *types.Review) (*types.Review, error)) (*types.Review, error)
	// CountCompletedBefore counts the user's COMPLETED interviews at level completed at or before at.
	CountCompletedBefore(ctx context.Context, userID uuid.UUID, level int, at time.Time) (int, error)
}

// Notifier informs a user that their review is final.
type Notifier interface {
	ReviewSubmitted(ctx context.Context, r *types.Review) error
}
