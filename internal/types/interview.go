// Package types provides the domain types shared by the interview, voice and review subsystems.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Mode is the interaction channel of an interview.
type Mode string

// Interview modes
const (
	ModeText  Mode = "TEXT"
	ModeVoice Mode = "VOICE"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeText || m == ModeVoice
}

// InterviewStatus is the persisted lifecycle state of an interview.
type InterviewStatus string

// Interview statuses
const (
	StatusInProgress InterviewStatus = "IN_PROGRESS"
	StatusCompleted  InterviewStatus = "COMPLETED"
	StatusAbandoned  InterviewStatus = "ABANDONED"
)

// Terminal reports whether no further status transition is allowed.
func (s InterviewStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Role tags the speaker of a transcript turn.
type Role string

// Transcript roles
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Question is one entry of the question snapshot taken when an interview starts.
type Question struct {
	QuestionID   string `json:"question_id" yaml:"id"`
	QuestionText string `json:"question_text" yaml:"text"`
	Order        int    `json:"order" yaml:"order"`
}

// Answer is a text-mode answer. At most one exists per question.
type Answer struct {
	QuestionID string    `json:"question_id"`
	AnswerText string    `json:"answer_text"`
	Timestamp  time.Time `json:"timestamp"`
}

// TranscriptTurn is one voice-mode dialogue turn.
type TranscriptTurn struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	QuestionID *string   `json:"question_id,omitempty"`
}

// Interview is the persisted record of one attempt at an assessment level.
type Interview struct {
	ID            uuid.UUID        `json:"id"`
	UserID        uuid.UUID        `json:"user_id"`
	Level         int              `json:"level"`
	Mode          Mode             `json:"mode"`
	Status        InterviewStatus  `json:"status"`
	Questions     []Question       `json:"questions"`
	Answers       []Answer         `json:"answers"`
	Transcript    []TranscriptTurn `json:"transcript"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	AbandonedAt   *time.Time       `json:"abandoned_at,omitempty"`
	AbandonReason *string          `json:"abandon_reason,omitempty"`
	FeedbackID    *uuid.UUID       `json:"feedback_id,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Progress summarises how many snapshot questions have an answer.
type Progress struct {
	Answered   int     `json:"answered"`
	Total      int     `json:"total"`
	Fraction   float64 `json:"fraction"`
	IsComplete bool    `json:"is_complete"`
}

// HasQuestion reports whether questionID is part of the snapshot.
func (iv *Interview) HasQuestion(questionID string) bool {
	for _, q := range iv.Questions {
		if q.QuestionID == questionID {
			return true
		}
	}
	return false
}

// Progress computes answered/total over the snapshot. Answers to questions
// outside the snapshot are ignored.
func (iv *Interview) Progress() Progress {
	answered := make(map[string]bool, len(iv.Answers))
	for _, a := range iv.Answers {
		if iv.HasQuestion(a.QuestionID) {
			answered[a.QuestionID] = true
		}
	}
	p := Progress{Answered: len(answered), Total: len(iv.Questions)}
	if p.Total > 0 {
		p.Fraction = float64(p.Answered) / float64(p.Total)
	}
	p.IsComplete = p.Total > 0 && p.Answered == p.Total
	return p
}

// UpsertAnswer replaces the answer for a question or appends a new one.
// A revised answer keeps its original position in the answer order.
func (iv *Interview) UpsertAnswer(a Answer) {
	for i := range iv.Answers {
		if iv.Answers[i].QuestionID == a.QuestionID {
			iv.Answers[i] = a
			return
		}
	}
	iv.Answers = append(iv.Answers, a)
}

// OwnedBy reports whether the interview belongs to userID.
func (iv *Interview) OwnedBy(userID uuid.UUID) bool {
	return iv.UserID == userID
}

// Clone returns a deep copy so callers can mutate freely.
func (iv *Interview) Clone() *Interview {
	if iv == nil {
		return nil
	}
	out := *iv
	out.Questions = append([]Question(nil), iv.Questions...)
	out.Answers = append([]Answer(nil), iv.Answers...)
	out.Transcript = make([]TranscriptTurn, len(iv.Transcript))
	for i, t := range iv.Transcript {
		out.Transcript[i] = t
		if t.QuestionID != nil {
			q := *t.QuestionID
			out.Transcript[i].QuestionID = &q
		}
	}
	if iv.CompletedAt != nil {
		t := *iv.CompletedAt
		out.CompletedAt = &t
	}
	if iv.AbandonedAt != nil {
		t := *iv.AbandonedAt
		out.AbandonedAt = &t
	}
	if iv.AbandonReason != nil {
		r := *iv.AbandonReason
		out.AbandonReason = &r
	}
	if iv.FeedbackID != nil {
		id := *iv.FeedbackID
		out.FeedbackID = &id
	}
	return &out
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
