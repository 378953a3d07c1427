// Package feedback generates and stores the single AI feedback record of a completed interview.
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/SelfScore/Self-Score-sub000/internal/retry"
	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// Store persists feedback and its link from the interview.
type Store interface {
	GetInterview(ctx context.Context, id uuid.UUID) (*types.Interview, error)
	GetFeedbackByInterview(ctx context.Context, interviewID uuid.UUID) (*types.Feedback, error)
	// CreateFeedback inserts fb unless feedback already exists for the interview,
	// in which case the existing record is returned with created=false.
	CreateFeedback(ctx context.Context, fb *types.Feedback) (stored *types.Feedback, created bool, err error)
	// LinkFeedback sets the interview's feedback reference if it is still unset.
	LinkFeedback(ctx context.Context, interviewID, feedbackID uuid.UUID) (applied bool, err error)
}

// Scorer produces the scoring content for an interview. ID, InterviewID, UserID and
// CreatedAt of the returned value are filled in by the Service.
type Scorer interface {
	Score(ctx context.Context, iv *types.Interview) (*types.Feedback, error)
}

// Service runs scoring under a retry policy and guarantees one Feedback per interview.
type Service struct {
	store  Store
	scorer Scorer
	policy retry.Policy
	group  singleflight.Group
	now    func() time.Time
}

// NewService creates a feedback service.
func NewService(store Store, scorer Scorer, policy retry.Policy) *Service {
	return &Service{
		store:  store,
		scorer: scorer,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the interview's feedback, or nil when none exists yet.
func (s *Service) Get(ctx context.Context, interviewID uuid.UUID) (*types.Feedback, error) {
	return s.store.GetFeedbackByInterview(ctx, interviewID)
}

// Generate returns the interview's feedback, scoring it first if needed.
// Concurrent calls for the same interview share one scoring run. The run is not
// tied to any caller's context; a caller whose context ends stops waiting for it.
func (s *Service) Generate(ctx context.Context, interviewID uuid.UUID) (*types.Feedback, error) {
	ch := s.group.DoChan(interviewID.String(), func() (interface{}, error) {
		return s.generate(context.WithoutCancel(ctx), interviewID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*types.Feedback), nil
	}
}

func (s *Service) generate(ctx context.Context, interviewID uuid.UUID) (*types.Feedback, error) {
	iv, err := s.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to load interview: %w", err)
	}
	if iv == nil {
		return nil, &types.NotFoundError{Entity: "interview", ID: interviewID.String()}
	}
	if iv.Status != types.StatusCompleted {
		return nil, &types.InvalidStateError{
			Entity: "interview",
			ID:     interviewID.String(),
			State:  string(iv.Status),
			Op:     "generate feedback for",
		}
	}

	existing, err := s.store.GetFeedbackByInterview(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}
	if existing != nil {
		if iv.FeedbackID == nil {
			if err := s.link(ctx, interviewID, existing.ID); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	var scored *types.Feedback
	start := s.now()
	err = retry.Do(ctx, s.policy, "feedback", func(ctx context.Context) error {
		fb, err := s.scorer.Score(ctx, iv)
		if err != nil {
			return err
		}
		scored = fb
		return nil
	})
	if err != nil {
		return nil, err
	}

	scored.ID = uuid.New()
	scored.InterviewID = iv.ID
	scored.UserID = iv.UserID
	scored.CreatedAt = s.now()

	stored, created, err := s.store.CreateFeedback(ctx, scored)
	if err != nil {
		return nil, fmt.Errorf("failed to store feedback: %w", err)
	}
	if err := s.link(ctx, interviewID, stored.ID); err != nil {
		return nil, err
	}
	if created {
		log.Info().Str("interview_id", interviewID.String()).Str("feedback_id", stored.ID.String()).
			Float64("total_score", stored.TotalScore).Dur("elapsed", s.now().Sub(start)).
			Msg("feedback generated")
	}
	return stored, nil
}

func (s *Service) link(ctx context.Context, interviewID, feedbackID uuid.UUID) error {
	if _, err := s.store.LinkFeedback(ctx, interviewID, feedbackID); err != nil {
		return fmt.Errorf("failed to link feedback: %w", err)
	}
	return nil
}
