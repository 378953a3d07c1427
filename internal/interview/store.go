// Package interview implements the interview record lifecycle: start or resume,
// text answers, voice transcript turns, finalization and abandonment.
package interview

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// Store persists interview records. Lookups return (nil, nil) when nothing matches.
//
// Every conditional write only applies while the interview is IN_PROGRESS and
// reports applied=false otherwise, so callers can re-read and decide.
type Store interface {
	// CreateOrGetInProgress inserts candidate unless an IN_PROGRESS interview already
	// exists for (candidate.UserID, candidate.Level), in which case that one is returned
	// with created=false.
	CreateOrGetInProgress(ctx context.Context, candidate *types.Interview) (iv *types.Interview, created bool, err error)
	FindInProgress(ctx context.Context, userID uuid.UUID, level int) (*types.Interview, error)
	GetInterview(ctx context.Context, id uuid.UUID) (*types.Interview, error)

	UpsertAnswer(ctx context.Context, id uuid.UUID, answer types.Answer) (iv *types.Interview, applied bool, err error)
	AppendTranscript(ctx context.Context, id uuid.UUID, turns []types.TranscriptTurn) (applied bool, err error)
	CompleteInterview(ctx context.Context, id uuid.UUID, at time.Time) (applied bool, err error)
	AbandonInterview(ctx context.Context, id uuid.UUID, reason string, at time.Time) (applied bool, err error)

	// ListStaleInProgress returns IN_PROGRESS interviews of the given mode whose last
	// write is older than before.
	ListStaleInProgress(ctx context.Context, mode types.Mode, before time.Time, limit int) ([]types.Interview, error)
	// ListMissingFeedback returns COMPLETED interviews without a feedback link.
	ListMissingFeedback(ctx context.Context, limit int) ([]types.Interview, error)
}

// FeedbackGenerator produces the single Feedback record for a completed interview.
type FeedbackGenerator interface {
	Generate(ctx context.Context, interviewID uuid.UUID) (*types.Feedback, error)
	Get(ctx context.Context, interviewID uuid.UUID) (*types.Feedback, error)
}
