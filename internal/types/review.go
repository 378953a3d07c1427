package types

import (
	"time"

	"github.com/google/uuid"
)

// ReviewStatus is the grading state of a human review.
type ReviewStatus string

// Review statuses
const (
	ReviewDraft     ReviewStatus = "DRAFT"
	ReviewSubmitted ReviewStatus = "SUBMITTED"
)

// AnswerMode records how a question was answered.
type AnswerMode string

// Answer modes
const (
	AnswerModeText  AnswerMode = "TEXT"
	AnswerModeVoice AnswerMode = "VOICE"
	AnswerModeMixed AnswerMode = "MIXED"
)

// QuestionReview is the reviewer's score and remark for one question.
// A nil Score means the question has not been graded yet.
type QuestionReview struct {
	QuestionID   string     `json:"question_id"`
	QuestionText string     `json:"question_text"`
	UserAnswer   string     `json:"user_answer"`
	AnswerMode   AnswerMode `json:"answer_mode"`
	Score        *float64   `json:"score,omitempty"`
	Remark       string     `json:"remark"`
}

// Review is a human grading pass over a completed interview.
type Review struct {
	ID              uuid.UUID        `json:"id"`
	InterviewID     uuid.UUID        `json:"interview_id"`
	UserID          uuid.UUID        `json:"user_id"`
	AdminID         uuid.UUID        `json:"admin_id"`
	AttemptNumber   int              `json:"attempt_number"`
	QuestionReviews []QuestionReview `json:"question_reviews"`
	TotalScore      float64          `json:"total_score"`
	Status          ReviewStatus     `json:"status"`
	ReviewedAt      time.Time        `json:"reviewed_at"`
	SubmittedAt     *time.Time       `json:"submitted_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// TotalScore sums the scores of all graded questions.
func TotalScore(qrs []QuestionReview) float64 {
	var total float64
	for _, qr := range qrs {
		if qr.Score != nil {
			total += *qr.Score
		}
	}
	return total
}

// ScoredCount returns how many questions carry a score.
func ScoredCount(qrs []QuestionReview) int {
	n := 0
	for _, qr := range qrs {
		if qr.Score != nil {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the review.
func (r *Review) Clone() *Review {
	if r == nil {
		return nil
	}
	out := *r
	out.QuestionReviews = make([]QuestionReview, len(r.QuestionReviews))
	for i, qr := range r.QuestionReviews {
		out.QuestionReviews[i] = qr
		if qr.Score != nil {
			s := *qr.Score
			out.QuestionReviews[i].Score = &s
		}
	}
	if r.SubmittedAt != nil {
		t := *r.SubmittedAt
		out.SubmittedAt = &t
	}
	return &out
}

// ReviewFilter narrows the review queue.
type ReviewFilter string

// Review queue filters
const (
	ReviewFilterAll       ReviewFilter = ""
	ReviewFilterPending   ReviewFilter = "pending"
	ReviewFilterDraft     ReviewFilter = "draft"
	ReviewFilterSubmitted ReviewFilter = "submitted"
)

// SubmissionFilter holds the review queue query.
type SubmissionFilter struct {
	Search   string
	Levels   []int
	Status   ReviewFilter
	Page     int
	PageSize int
}

// Submission is a completed interview as seen from the review queue.
type Submission struct {
	InterviewID  uuid.UUID     `json:"interview_id"`
	UserID       uuid.UUID     `json:"user_id"`
	Level        int           `json:"level"`
	Mode         Mode          `json:"mode"`
	CompletedAt  time.Time     `json:"completed_at"`
	HasReview    bool          `json:"has_review"`
	ReviewID     *uuid.UUID    `json:"review_id,omitempty"`
	ReviewStatus *ReviewStatus `json:"review_status,omitempty"`
	TotalScore   *float64      `json:"total_score,omitempty"`
}

// SubmissionPage is one page of the review queue.
type SubmissionPage struct {
	Items    []Submission `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// SubmissionDetail joins an interview's question/answer pairs with any existing review.
type SubmissionDetail struct {
	InterviewID     uuid.UUID        `json:"interview_id"`
	UserID          uuid.UUID        `json:"user_id"`
	Level           int              `json:"level"`
	Mode            Mode             `json:"mode"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	QuestionReviews []QuestionReview `json:"question_reviews"`
	TotalScore      float64          `json:"total_score"`
	ReviewID        *uuid.UUID       `json:"review_id,omitempty"`
	ReviewStatus    *ReviewStatus    `json:"review_status,omitempty"`
	AttemptNumber   int              `json:"attempt_number,omitempty"`
}
