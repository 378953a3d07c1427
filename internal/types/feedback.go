package types

import (
	"time"

	"github.com/google/uuid"
)

// CategoryScore is the score for one scored dimension.
type CategoryScore struct {
	Name    string  `json:"name"`
	Score   float64 `json:"score"`
	Comment string  `json:"comment"`
}

// Feedback is the AI-generated scoring for a completed interview.
// Exactly one exists per interview once generation has succeeded.
type Feedback struct {
	ID                  uuid.UUID       `json:"id"`
	InterviewID         uuid.UUID       `json:"interview_id"`
	UserID              uuid.UUID       `json:"user_id"`
	TotalScore          float64         `json:"total_score"`
	CategoryScores      []CategoryScore `json:"category_scores"`
	Strengths           []string        `json:"strengths"`
	AreasForImprovement []string        `json:"areas_for_improvement"`
	Recommendations     []string        `json:"recommendations"`
	FinalAssessment     string          `json:"final_assessment"`
	CreatedAt           time.Time       `json:"created_at"`
}
