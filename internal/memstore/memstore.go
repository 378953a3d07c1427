// Package memstore keeps interviews, feedback and reviews in process memory.
// It backs `serve --in-memory` and service tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

type levelKey struct {
	userID uuid.UUID
	level  int
}

// Store is safe for concurrent use. Every value returned is a copy.
type Store struct {
	mu         sync.Mutex
	interviews map[uuid.UUID]*types.Interview
	inProgress map[levelKey]uuid.UUID
	feedback   map[uuid.UUID]*types.Feedback
	reviews    map[uuid.UUID]*types.Review
	now        func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		interviews: make(map[uuid.UUID]*types.Interview),
		inProgress: make(map[levelKey]uuid.UUID),
		feedback:   make(map[uuid.UUID]*types.Feedback),
		reviews:    make(map[uuid.UUID]*types.Review),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrGetInProgress stores candidate unless the user already has an IN_PROGRESS
// interview at the level.
func (s *Store) CreateOrGetInProgress(_ context.Context, candidate *types.Interview) (*types.Interview, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := levelKey{candidate.UserID, candidate.Level}
	if id, ok := s.inProgress[key]; ok {
		return s.interviews[id].Clone(), false, nil
	}
	iv := candidate.Clone()
	s.interviews[iv.ID] = iv
	s.inProgress[key] = iv.ID
	return iv.Clone(), true, nil
}

// FindInProgress returns the user's IN_PROGRESS interview at level.
func (s *Store) FindInProgress(_ context.Context, userID uuid.UUID, level int) (*types.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.inProgress[levelKey{userID, level}]; ok {
		return s.interviews[id].Clone(), nil
	}
	return nil, nil
}

// GetInterview returns an interview by id.
func (s *Store) GetInterview(_ context.Context, id uuid.UUID) (*types.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interviews[id].Clone(), nil
}

// mutable returns the stored interview if it is IN_PROGRESS.
func (s *Store) mutable(id uuid.UUID) *types.Interview {
	iv, ok := s.interviews[id]
	if !ok || iv.Status != types.StatusInProgress {
		return nil
	}
	return iv
}

// UpsertAnswer replaces or appends the answer for its question.
func (s *Store) UpsertAnswer(_ context.Context, id uuid.UUID, answer types.Answer) (*types.Interview, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv := s.mutable(id)
	if iv == nil {
		return nil, false, nil
	}
	iv.UpsertAnswer(answer)
	iv.UpdatedAt = s.now()
	return iv.Clone(), true, nil
}

// AppendTranscript appends turns in order.
func (s *Store) AppendTranscript(_ context.Context, id uuid.UUID, turns []types.TranscriptTurn) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv := s.mutable(id)
	if iv == nil {
		return false, nil
	}
	for _, t := range turns {
		if t.QuestionID != nil {
			q := *t.QuestionID
			t.QuestionID = &q
		}
		iv.Transcript = append(iv.Transcript, t)
	}
	iv.UpdatedAt = s.now()
	return true, nil
}

// CompleteInterview moves an IN_PROGRESS interview to COMPLETED.
func (s *Store) CompleteInterview(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv := s.mutable(id)
	if iv == nil {
		return false, nil
	}
	iv.Status = types.StatusCompleted
	iv.CompletedAt = &at
	iv.UpdatedAt = at
	delete(s.inProgress, levelKey{iv.UserID, iv.Level})
	return true, nil
}

// AbandonInterview moves an IN_PROGRESS interview to ABANDONED.
func (s *Store) AbandonInterview(_ context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv := s.mutable(id)
	if iv == nil {
		return false, nil
	}
	iv.Status = types.StatusAbandoned
	iv.AbandonedAt = &at
	iv.AbandonReason = types.StringPtr(reason)
	iv.UpdatedAt = at
	delete(s.inProgress, levelKey{iv.UserID, iv.Level})
	return true, nil
}

// ListStaleInProgress returns IN_PROGRESS interviews of mode last written before the cutoff.
func (s *Store) ListStaleInProgress(_ context.Context, mode types.Mode, before time.Time, limit int) ([]types.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Interview
	for _, id := range s.inProgress {
		iv := s.interviews[id]
		if iv.Mode == mode && iv.UpdatedAt.Before(before) {
			out = append(out, *iv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return truncate(out, limit), nil
}

// ListMissingFeedback returns COMPLETED interviews without a feedback link, oldest first.
func (s *Store) ListMissingFeedback(_ context.Context, limit int) ([]types.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Interview
	for _, iv := range s.interviews {
		if iv.Status == types.StatusCompleted && iv.FeedbackID == nil {
			out = append(out, *iv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(*out[j].CompletedAt) })
	return truncate(out, limit), nil
}

// GetFeedbackByInterview returns the interview's feedback.
func (s *Store) GetFeedbackByInterview(_ context.Context, interviewID uuid.UUID) (*types.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneFeedback(s.feedback[interviewID]), nil
}

// CreateFeedback stores fb unless the interview already has feedback.
func (s *Store) CreateFeedback(_ context.Context, fb *types.Feedback) (*types.Feedback, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.feedback[fb.InterviewID]; ok {
		return cloneFeedback(existing), false, nil
	}
	s.feedback[fb.InterviewID] = cloneFeedback(fb)
	return cloneFeedback(fb), true, nil
}

// LinkFeedback sets the interview's feedback id if unset.
func (s *Store) LinkFeedback(_ context.Context, interviewID, feedbackID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv, ok := s.interviews[interviewID]
	if !ok || iv.FeedbackID != nil {
		return false, nil
	}
	iv.FeedbackID = &feedbackID
	iv.UpdatedAt = s.now()
	return true, nil
}

// ListSubmissions pages COMPLETED interviews, newest completion first.
func (s *Store) ListSubmissions(_ context.Context, filter types.SubmissionFilter) (*types.SubmissionPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	levels := make(map[int]bool, len(filter.Levels))
	for _, l := range filter.Levels {
		levels[l] = true
	}
	search := strings.ToLower(filter.Search)

	var items []types.Submission
	for _, iv := range s.interviews {
		if iv.Status != types.StatusCompleted {
			continue
		}
		if len(levels) > 0 && !levels[iv.Level] {
			continue
		}
		if search != "" && !strings.Contains(iv.ID.String(), search) && !strings.Contains(iv.UserID.String(), search) {
			continue
		}
		sub := types.Submission{
			InterviewID: iv.ID,
			UserID:      iv.UserID,
			Level:       iv.Level,
			Mode:        iv.Mode,
			CompletedAt: *iv.CompletedAt,
		}
		if r, ok := s.reviews[iv.ID]; ok {
			id, status, total := r.ID, r.Status, r.TotalScore
			sub.HasReview = true
			sub.ReviewID = &id
			sub.ReviewStatus = &status
			sub.TotalScore = &total
		}
		if !matchesStatus(sub, filter.Status) {
			continue
		}
		items = append(items, sub)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CompletedAt.After(items[j].CompletedAt) })

	page := &types.SubmissionPage{Total: len(items), Page: filter.Page, PageSize: filter.PageSize}
	start := (filter.Page - 1) * filter.PageSize
	if start > len(items) {
		start = len(items)
	}
	end := start + filter.PageSize
	if end > len(items) {
		end = len(items)
	}
	page.Items = append([]types.Submission{}, items[start:end]...)
	return page, nil
}

func matchesStatus(sub types.Submission, f types.ReviewFilter) bool {
	switch f {
	case types.ReviewFilterPending:
		return !sub.HasReview
	case types.ReviewFilterDraft:
		return sub.HasReview && *sub.ReviewStatus == types.ReviewDraft
	case types.ReviewFilterSubmitted:
		return sub.HasReview && *sub.ReviewStatus == types.ReviewSubmitted
	default:
		return true
	}
}

// GetReviewByInterview returns the interview's review.
func (s *Store) GetReviewByInterview(_ context.Context, interviewID uuid.UUID) (*types.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviews[interviewID].Clone(), nil
}

// UpdateReview applies fn under the store lock.
func (s *Store) UpdateReview(_ context.Context, interviewID uuid.UUID, fn func(current *types.Review) (*types.Review, error)) (*types.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.reviews[interviewID].Clone())
	if err != nil {
		return nil, err
	}
	s.reviews[interviewID] = next.Clone()
	return next, nil
}

// CountCompletedBefore counts the user's completed interviews at level up to at.
func (s *Store) CountCompletedBefore(_ context.Context, userID uuid.UUID, level int, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, iv := range s.interviews {
		if iv.UserID == userID && iv.Level == level && iv.Status == types.StatusCompleted && !iv.CompletedAt.After(at) {
			n++
		}
	}
	return n, nil
}

func truncate(ivs []types.Interview, limit int) []types.Interview {
	if limit > 0 && len(ivs) > limit {
		return ivs[:limit]
	}
	return ivs
}

func cloneFeedback(fb *types.Feedback) *types.Feedback {
	if fb == nil {
		return nil
	}
	out := *fb
	out.CategoryScores = append([]types.CategoryScore(nil), fb.CategoryScores...)
	out.Strengths = copyStrings(fb.Strengths)
	out.AreasForImprovement = copyStrings(fb.AreasForImprovement)
	out.Recommendations = copyStrings(fb.Recommendations)
	return &out
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}
