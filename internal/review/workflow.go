package review

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Workflow lets admins grade completed interviews: draft any number of times, submit once.
type Workflow struct {
	store    Store
	notifier Notifier
	levels   map[int]bool
	now      func() time.Time
}

// NewWorkflow creates a workflow. Only interviews at the given levels can be reviewed;
// an empty list leaves every level open for review.
func NewWorkflow(store Store, notifier Notifier, levels []int) *Workflow {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	w := &Workflow{
		store:    store,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if len(levels) > 0 {
		w.levels = make(map[int]bool, len(levels))
		for _, l := range levels {
			w.levels[l] = true
		}
	}
	return w
}

// SetClock overrides the time source.
func (w *Workflow) SetClock(now func() time.Time) {
	w.now = now
}

func (w *Workflow) gated(level int) bool {
	return w.levels == nil || w.levels[level]
}

func requireAdmin(reviewer types.Identity) error {
	if !reviewer.Established() {
		return &types.NotAuthorizedError{Reason: "no user identity"}
	}
	if !reviewer.Admin {
		return &types.NotAuthorizedError{Reason: "reviewer role required"}
	}
	return nil
}

// ListSubmissions returns a page of completed interviews with their review state.
func (w *Workflow) ListSubmissions(ctx context.Context, reviewer types.Identity, filter types.SubmissionFilter) (*types.SubmissionPage, error) {
	if err := requireAdmin(reviewer); err != nil {
		return nil, err
	}
	switch filter.Status {
	case types.ReviewFilterAll, types.ReviewFilterPending, types.ReviewFilterDraft, types.ReviewFilterSubmitted:
	default:
		return nil, &types.ValidationError{Field: "status", Message: fmt.Sprintf("unsupported filter %q", filter.Status)}
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	filter.Search = strings.TrimSpace(filter.Search)
	levels, ok := w.allowedLevels(filter.Levels)
	if !ok {
		return &types.SubmissionPage{Items: []types.Submission{}, Page: filter.Page, PageSize: filter.PageSize}, nil
	}
	filter.Levels = levels

	page, err := w.store.ListSubmissions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return page, nil
}

// allowedLevels intersects the requested levels with the reviewed ones.
// ok is false when nothing can match.
func (w *Workflow) allowedLevels(requested []int) (levels []int, ok bool) {
	if w.levels == nil {
		return requested, true
	}
	if len(requested) == 0 {
		for l := range w.levels {
			levels = append(levels, l)
		}
	} else {
		for _, l := range requested {
			if w.levels[l] {
				levels = append(levels, l)
			}
		}
	}
	sort.Ints(levels)
	return levels, len(levels) > 0
}

// LoadSubmission returns the interview's question/answer pairs merged with any
// existing review so a reviewer can resume partial work.
func (w *Workflow) LoadSubmission(ctx context.Context, reviewer types.Identity, interviewID uuid.UUID) (*types.SubmissionDetail, error) {
	if err := requireAdmin(reviewer); err != nil {
		return nil, err
	}
	iv, err := w.reviewable(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	existing, err := w.store.GetReviewByInterview(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to load review: %w", err)
	}

	qrs := BuildQuestionReviews(iv, existing)
	detail := &types.SubmissionDetail{
		InterviewID:     iv.ID,
		UserID:          iv.UserID,
		Level:           iv.Level,
		Mode:            iv.Mode,
		CompletedAt:     iv.CompletedAt,
		QuestionReviews: qrs,
		TotalScore:      types.TotalScore(qrs),
	}
	if existing != nil {
		status := existing.Status
		detail.ReviewID = &existing.ID
		detail.ReviewStatus = &status
		detail.AttemptNumber = existing.AttemptNumber
	}
	return detail, nil
}

// SaveDraft upserts a DRAFT review. It fails with AlreadySubmittedError once submitted.
func (w *Workflow) SaveDraft(ctx context.Context, reviewer types.Identity, interviewID uuid.UUID, inputs []types.QuestionReviewInput) (*types.Review, error) {
	return w.save(ctx, reviewer, interviewID, inputs, false)
}

// SubmitReview upserts and locks the review. Every question must carry a score.
func (w *Workflow) SubmitReview(ctx context.Context, reviewer types.Identity, interviewID uuid.UUID, inputs []types.QuestionReviewInput) (*types.Review, error) {
	r, err := w.save(ctx, reviewer, interviewID, inputs, true)
	if err != nil {
		return nil, err
	}
	if err := w.notifier.ReviewSubmitted(ctx, r); err != nil {
		log.Error().Err(err).Str("review_id", r.ID.String()).Msg("review notification failed")
	}
	return r, nil
}

func (w *Workflow) save(ctx context.Context, reviewer types.Identity, interviewID uuid.UUID, inputs []types.QuestionReviewInput, submit bool) (*types.Review, error) {
	if err := requireAdmin(reviewer); err != nil {
		return nil, err
	}
	iv, err := w.reviewable(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if err := checkInputs(iv, inputs); err != nil {
		return nil, err
	}

	attempt, err := w.attemptNumber(ctx, iv)
	if err != nil {
		return nil, err
	}
	updated, err := w.store.UpdateReview(ctx, interviewID, func(current *types.Review) (*types.Review, error) {
		if current != nil && current.Status == types.ReviewSubmitted {
			return nil, &types.AlreadySubmittedError{InterviewID: interviewID, ReviewID: current.ID}
		}

		now := w.now()
		next := current.Clone()
		if next == nil {
			next = &types.Review{
				ID:            uuid.New(),
				InterviewID:   iv.ID,
				UserID:        iv.UserID,
				AttemptNumber: attempt,
				CreatedAt:     now,
			}
		}
		next.QuestionReviews = Merge(BuildQuestionReviews(iv, current), inputs)
		next.TotalScore = types.TotalScore(next.QuestionReviews)
		next.AdminID = reviewer.UserID
		next.ReviewedAt = now
		next.Status = types.ReviewDraft

		if submit {
			if scored := types.ScoredCount(next.QuestionReviews); scored < len(next.QuestionReviews) {
				return nil, &types.ValidationError{
					Field:   "question_reviews",
					Message: fmt.Sprintf("%d of %d questions scored, all are required to submit", scored, len(next.QuestionReviews)),
				}
			}
			next.Status = types.ReviewSubmitted
			next.SubmittedAt = &now
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("review_id", updated.ID.String()).Str("interview_id", interviewID.String()).
		Str("admin_id", reviewer.UserID.String()).Str("status", string(updated.Status)).
		Int("scored", types.ScoredCount(updated.QuestionReviews)).Int("questions", len(updated.QuestionReviews)).
		Float64("total_score", updated.TotalScore).Msg("review saved")
	return updated, nil
}

func (w *Workflow) attemptNumber(ctx context.Context, iv *types.Interview) (int, error) {
	if iv.CompletedAt == nil {
		return 1, nil
	}
	n, err := w.store.CountCompletedBefore(ctx, iv.UserID, iv.Level, *iv.CompletedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to compute attempt number: %w", err)
	}
	if n < 1 {
		n = 1
	}
	return n, nil
}

func (w *Workflow) reviewable(ctx context.Context, interviewID uuid.UUID) (*types.Interview, error) {
	iv, err := w.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to load interview: %w", err)
	}
	if iv == nil {
		return nil, &types.NotFoundError{Entity: "interview", ID: interviewID.String()}
	}
	if iv.Status != types.StatusCompleted {
		return nil, &types.InvalidStateError{Entity: "interview", ID: interviewID.String(), State: string(iv.Status), Op: "review"}
	}
	if !w.gated(iv.Level) {
		return nil, &types.InvalidStateError{
			Entity: "interview",
			ID:     interviewID.String(),
			State:  fmt.Sprintf("level %d not reviewed", iv.Level),
			Op:     "review",
		}
	}
	return iv, nil
}

func checkInputs(iv *types.Interview, inputs []types.QuestionReviewInput) error {
	for _, in := range inputs {
		if !iv.HasQuestion(in.QuestionID) {
			return &types.UnknownQuestionError{InterviewID: iv.ID, QuestionID: in.QuestionID}
		}
		if in.Score != nil && *in.Score < 0 {
			return &types.ValidationError{Field: "score", Message: fmt.Sprintf("negative score for %s", in.QuestionID)}
		}
	}
	return nil
}
