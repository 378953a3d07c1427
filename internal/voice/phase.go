// Package voice orchestrates ephemeral voice interview sessions: it hands the client a
// signaling descriptor, bridges provider events into the interview transcript and
// keeps the session phase in agreement with the persisted interview.
package voice

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Phase is a voice session's position in its state machine.
type Phase string

// Session phases
const (
	PhaseInitializing Phase = "INITIALIZING"
	PhaseReady        Phase = "READY"
	PhaseActive       Phase = "ACTIVE"
	PhaseCompleting   Phase = "COMPLETING"
	PhaseCompleted    Phase = "COMPLETED"
	PhaseAbandoned    Phase = "ABANDONED"
	PhaseError        Phase = "ERROR"
)

// Terminal reports whether the phase accepts no further transitions.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseAbandoned || p == PhaseError
}

var transitions = map[Phase][]Phase{
	PhaseInitializing: {PhaseReady, PhaseAbandoned, PhaseError},
	PhaseReady:        {PhaseActive, PhaseAbandoned, PhaseError},
	PhaseActive:       {PhaseCompleting, PhaseAbandoned, PhaseError},
	PhaseCompleting:   {PhaseCompleted, PhaseAbandoned, PhaseError},
}

// CanTransition reports whether from -> to is a legal phase change.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// TransitionError is returned for an illegal phase change.
type TransitionError struct {
	From Phase
	To   Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal voice session transition %s -> %s", e.From, e.To)
}

// EndReason is how a client ends a session.
type EndReason string

// End reasons
const (
	EndCompleted EndReason = "completed"
	EndAbandoned EndReason = "abandoned"
)

// Status is the polled or pushed view of a session.
type Status struct {
	SessionID            uuid.UUID  `json:"session_id"`
	InterviewID          uuid.UUID  `json:"interview_id"`
	Level                int        `json:"level"`
	Phase                Phase      `json:"phase"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	TotalQuestions       int        `json:"total_questions"`
	StartedAt            time.Time  `json:"started_at"`
	ElapsedSeconds       int64      `json:"elapsed_seconds"`
	FeedbackID           *uuid.UUID `json:"feedback_id,omitempty"`
	Error                string     `json:"error,omitempty"`
}
