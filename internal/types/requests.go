package types

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// StartInterviewRequest starts or resumes an interview for a level.
type StartInterviewRequest struct {
	Level int  `json:"level" validate:"required,min=1"`
	Mode  Mode `json:"mode" validate:"required,oneof=TEXT VOICE"`
}

// SubmitAnswerRequest records or revises one text answer.
type SubmitAnswerRequest struct {
	QuestionID string `json:"question_id" validate:"required"`
	AnswerText string `json:"answer_text" validate:"required"`
}

// AppendTranscriptRequest appends one voice turn. Content is never rejected.
type AppendTranscriptRequest struct {
	Role       Role    `json:"role" validate:"required,oneof=user assistant"`
	Content    string  `json:"content"`
	QuestionID *string `json:"question_id,omitempty"`
}

// AbandonInterviewRequest abandons an in-progress interview.
type AbandonInterviewRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// StartVoiceSessionRequest opens a voice session for a level.
type StartVoiceSessionRequest struct {
	Level int `json:"level" validate:"required,min=1"`
}

// EndVoiceSessionRequest ends a voice session.
type EndVoiceSessionRequest struct {
	Reason string `json:"reason" validate:"required,oneof=completed abandoned"`
}

// QuestionReviewInput is a reviewer's score and remark for one question.
type QuestionReviewInput struct {
	QuestionID string   `json:"question_id" validate:"required"`
	Score      *float64 `json:"score,omitempty" validate:"omitempty,min=0"`
	Remark     string   `json:"remark" validate:"max=4000"`
}

// ReviewRequest carries the per-question grades for SaveDraft and SubmitReview.
type ReviewRequest struct {
	QuestionReviews []QuestionReviewInput `json:"question_reviews" validate:"required,dive"`
}

// Validate validates the StartInterviewRequest using the validator.
func (r *StartInterviewRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the SubmitAnswerRequest using the validator.
func (r *SubmitAnswerRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the AppendTranscriptRequest using the validator.
func (r *AppendTranscriptRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the AbandonInterviewRequest using the validator.
func (r *AbandonInterviewRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the StartVoiceSessionRequest using the validator.
func (r *StartVoiceSessionRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the EndVoiceSessionRequest using the validator.
func (r *EndVoiceSessionRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the ReviewRequest using the validator.
func (r *ReviewRequest) Validate() error {
	return validate.Struct(r)
}
