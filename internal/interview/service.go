package interview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SelfScore/Self-Score-sub000/internal/catalog"
	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// Service coordinates the interview record lifecycle.
type Service struct {
	store    Store
	catalog  catalog.Provider
	feedback FeedbackGenerator
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an interview service.
func NewService(store Store, questions catalog.Provider, feedback FeedbackGenerator, opts ...Option) *Service {
	s := &Service{
		store:    store,
		catalog:  questions,
		feedback: feedback,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartResult is returned by StartOrResume.
type StartResult struct {
	Interview *types.Interview `json:"interview"`
	Progress  types.Progress   `json:"progress"`
	Resumed   bool             `json:"resumed"`
}

// FinalizeResult is returned by Finalize.
type FinalizeResult struct {
	Interview  *types.Interview `json:"interview"`
	FeedbackID *uuid.UUID       `json:"feedback_id,omitempty"`
}

// StartOrResume returns the caller's IN_PROGRESS interview for the level unchanged,
// or creates a new one with a snapshot of the level's current questions.
func (s *Service) StartOrResume(ctx context.Context, id types.Identity, level int, mode types.Mode) (*StartResult, error) {
	if !id.Established() {
		return nil, &types.NotAuthorizedError{Reason: "no user identity"}
	}
	if !mode.Valid() {
		return nil, &types.ValidationError{Field: "mode", Message: fmt.Sprintf("unsupported mode %q", mode)}
	}

	existing, err := s.store.FindInProgress(ctx, id.UserID, level)
	if err != nil {
		return nil, fmt.Errorf("failed to look up in-progress interview: %w", err)
	}
	if existing != nil {
		return &StartResult{Interview: existing, Progress: existing.Progress(), Resumed: true}, nil
	}

	questions, err := s.catalog.Questions(ctx, level)
	if err != nil {
		log.Error().Err(err).Int("level", level).Msg("question catalog lookup failed")
		return nil, &types.CatalogUnavailableError{Level: level, Cause: err}
	}
	if len(questions) == 0 {
		log.Error().Int("level", level).Msg("question catalog empty")
		return nil, &types.CatalogUnavailableError{Level: level}
	}

	now := s.now()
	candidate := &types.Interview{
		ID:         uuid.New(),
		UserID:     id.UserID,
		Level:      level,
		Mode:       mode,
		Status:     types.StatusInProgress,
		Questions:  questions,
		Answers:    []types.Answer{},
		Transcript: []types.TranscriptTurn{},
		StartedAt:  now,
		UpdatedAt:  now,
	}

	iv, created, err := s.store.CreateOrGetInProgress(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to create interview: %w", err)
	}
	if created {
		log.Info().Str("interview_id", iv.ID.String()).Str("user_id", id.UserID.String()).
			Int("level", level).Str("mode", string(mode)).Int("questions", len(questions)).
			Msg("interview started")
	}
	return &StartResult{Interview: iv, Progress: iv.Progress(), Resumed: !created}, nil
}

// GetInterview returns an interview the caller may access.
func (s *Service) GetInterview(ctx context.Context, id types.Identity, interviewID uuid.UUID) (*types.Interview, error) {
	if !id.Established() {
		return nil, &types.NotAuthorizedError{Reason: "no user identity"}
	}
	iv, err := s.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to get interview: %w", err)
	}
	if iv == nil {
		return nil, &types.NotFoundError{Entity: "interview", ID: interviewID.String()}
	}
	if !id.CanAccess(iv.UserID) {
		return nil, &types.NotAuthorizedError{Reason: "interview belongs to another user"}
	}
	return iv, nil
}

// RecordAnswer upserts the text answer for a question and returns the new progress.
func (s *Service) RecordAnswer(ctx context.Context, id types.Identity, interviewID uuid.UUID, questionID, answerText string) (types.Progress, error) {
	iv, err := s.GetInterview(ctx, id, interviewID)
	if err != nil {
		return types.Progress{}, err
	}
	if iv.Mode != types.ModeText {
		return types.Progress{}, invalidState(iv, "record answer on")
	}
	if iv.Status != types.StatusInProgress {
		return types.Progress{}, invalidState(iv, "record answer on")
	}
	if !iv.HasQuestion(questionID) {
		log.Warn().Str("interview_id", interviewID.String()).Str("question_id", questionID).Msg("answer for unknown question")
		return types.Progress{}, &types.UnknownQuestionError{InterviewID: interviewID, QuestionID: questionID}
	}

	updated, applied, err := s.store.UpsertAnswer(ctx, interviewID, types.Answer{
		QuestionID: questionID,
		AnswerText: answerText,
		Timestamp:  s.now(),
	})
	if err != nil {
		return types.Progress{}, fmt.Errorf("failed to record answer: %w", err)
	}
	if !applied {
		return types.Progress{}, s.staleState(ctx, interviewID, "record answer on")
	}
	return updated.Progress(), nil
}

// AppendTranscript appends one voice turn. Content is never rejected.
func (s *Service) AppendTranscript(ctx context.Context, id types.Identity, interviewID uuid.UUID, turn types.TranscriptTurn) error {
	return s.AppendTranscriptBatch(ctx, id, interviewID, []types.TranscriptTurn{turn})
}

// AppendTranscriptBatch appends turns atomically and in order.
func (s *Service) AppendTranscriptBatch(ctx context.Context, id types.Identity, interviewID uuid.UUID, turns []types.TranscriptTurn) error {
	if len(turns) == 0 {
		return nil
	}
	iv, err := s.GetInterview(ctx, id, interviewID)
	if err != nil {
		return err
	}
	if iv.Mode != types.ModeVoice || iv.Status != types.StatusInProgress {
		return invalidState(iv, "append transcript to")
	}
	for i := range turns {
		if !turns[i].Role.Valid() {
			return &types.ValidationError{Field: "role", Message: fmt.Sprintf("unsupported role %q", turns[i].Role)}
		}
		if turns[i].Timestamp.IsZero() {
			turns[i].Timestamp = s.now()
		}
	}

	applied, err := s.store.AppendTranscript(ctx, interviewID, turns)
	if err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	if !applied {
		return s.staleState(ctx, interviewID, "append transcript to")
	}
	return nil
}

// Finalize completes an interview and generates its feedback. Calling it again on a
// COMPLETED interview returns the existing feedback reference; if the earlier
// generation failed it is retried without creating a second Feedback record.
//
// A feedback provider failure is returned as an error together with a result whose
// interview is COMPLETED and FeedbackID is nil.
func (s *Service) Finalize(ctx context.Context, id types.Identity, interviewID uuid.UUID) (*FinalizeResult, error) {
	iv, err := s.GetInterview(ctx, id, interviewID)
	if err != nil {
		return nil, err
	}

	switch iv.Status {
	case types.StatusAbandoned:
		return nil, invalidState(iv, "finalize")
	case types.StatusInProgress:
		applied, err := s.store.CompleteInterview(ctx, interviewID, s.now())
		if err != nil {
			return nil, fmt.Errorf("failed to complete interview: %w", err)
		}
		iv, err = s.store.GetInterview(ctx, interviewID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload interview: %w", err)
		}
		if iv == nil {
			return nil, &types.NotFoundError{Entity: "interview", ID: interviewID.String()}
		}
		if !applied && iv.Status != types.StatusCompleted {
			return nil, invalidState(iv, "finalize")
		}
		if applied {
			log.Info().Str("interview_id", interviewID.String()).Str("mode", string(iv.Mode)).
				Int("answers", len(iv.Answers)).Int("turns", len(iv.Transcript)).Msg("interview completed")
		}
	}

	result := &FinalizeResult{Interview: iv, FeedbackID: iv.FeedbackID}
	if iv.FeedbackID != nil {
		return result, nil
	}

	fb, err := s.feedback.Generate(ctx, interviewID)
	if err != nil {
		log.Error().Err(err).Str("interview_id", interviewID.String()).Msg("feedback generation failed")
		return result, err
	}
	result.FeedbackID = &fb.ID
	result.Interview.FeedbackID = &fb.ID
	return result, nil
}

// Abandon moves an IN_PROGRESS interview to ABANDONED. Terminal interviews are returned unchanged.
func (s *Service) Abandon(ctx context.Context, id types.Identity, interviewID uuid.UUID, reason string) (*types.Interview, error) {
	iv, err := s.GetInterview(ctx, id, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status.Terminal() {
		return iv, nil
	}
	applied, err := s.store.AbandonInterview(ctx, interviewID, reason, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to abandon interview: %w", err)
	}
	if applied {
		log.Info().Str("interview_id", interviewID.String()).Str("reason", reason).Msg("interview abandoned")
	}
	iv, err = s.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload interview: %w", err)
	}
	return iv, nil
}

// GetFeedback returns the feedback of an interview the caller may access.
func (s *Service) GetFeedback(ctx context.Context, id types.Identity, interviewID uuid.UUID) (*types.Feedback, error) {
	iv, err := s.GetInterview(ctx, id, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status != types.StatusCompleted {
		return nil, invalidState(iv, "read feedback of")
	}
	fb, err := s.feedback.Get(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	if fb == nil {
		return nil, &types.NotFoundError{Entity: "feedback", ID: interviewID.String()}
	}
	return fb, nil
}

// RetryFeedback re-runs feedback generation for a COMPLETED interview that lacks it.
func (s *Service) RetryFeedback(ctx context.Context, id types.Identity, interviewID uuid.UUID) (*types.Feedback, error) {
	iv, err := s.GetInterview(ctx, id, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status != types.StatusCompleted {
		return nil, invalidState(iv, "generate feedback for")
	}
	return s.feedback.Generate(ctx, interviewID)
}

// RetryMissingFeedback regenerates feedback for up to limit completed interviews
// lacking it. It returns how many succeeded and the failures keyed by interview.
func (s *Service) RetryMissingFeedback(ctx context.Context, limit int) (int, map[uuid.UUID]error, error) {
	pending, err := s.store.ListMissingFeedback(ctx, limit)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list interviews missing feedback: %w", err)
	}
	failures := make(map[uuid.UUID]error)
	ok := 0
	for _, iv := range pending {
		if _, err := s.feedback.Generate(ctx, iv.ID); err != nil {
			failures[iv.ID] = err
			continue
		}
		ok++
	}
	return ok, failures, nil
}

// AbandonStale abandons IN_PROGRESS interviews of a mode idle since before.
func (s *Service) AbandonStale(ctx context.Context, mode types.Mode, before time.Time, reason string) (int, error) {
	stale, err := s.store.ListStaleInProgress(ctx, mode, before, 500)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale interviews: %w", err)
	}
	n := 0
	for _, iv := range stale {
		applied, err := s.store.AbandonInterview(ctx, iv.ID, reason, s.now())
		if err != nil {
			return n, fmt.Errorf("failed to abandon interview %s: %w", iv.ID, err)
		}
		if applied {
			n++
		}
	}
	return n, nil
}

// staleState reports the current state after a conditional write lost a race.
func (s *Service) staleState(ctx context.Context, interviewID uuid.UUID, op string) error {
	iv, err := s.store.GetInterview(ctx, interviewID)
	if err != nil {
		return fmt.Errorf("failed to reload interview: %w", err)
	}
	if iv == nil {
		return &types.NotFoundError{Entity: "interview", ID: interviewID.String()}
	}
	return invalidState(iv, op)
}

func invalidState(iv *types.Interview, op string) error {
	return &types.InvalidStateError{
		Entity: "interview",
		ID:     iv.ID.String(),
		State:  fmt.Sprintf("%s/%s", iv.Mode, iv.Status),
		Op:     op,
	}
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var ise *types.InvalidStateError
	return errors.As(err, &ise)
}
