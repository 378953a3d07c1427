package voice

import (
	"context"

	"github.com/google/uuid"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// SignalingProvider is the external real-time voice provider.
type SignalingProvider interface {
	// CreateChannel reserves a channel and returns what the client needs to join it.
	CreateChannel(ctx context.Context, sessionID uuid.UUID, iv *types.Interview) (*types.SignalingDescriptor, error)
	// Connect opens the control link over which the provider reports the conversation.
	Connect(ctx context.Context, sessionID uuid.UUID) (Link, error)
}

// Link delivers provider events for one session.
type Link interface {
	Events() <-chan Event
	Close() error
}

// EventKind discriminates provider events.
type EventKind string

// Provider event kinds
const (
	EventTurn              EventKind = "turn"
	EventQuestionAdvanced  EventKind = "question_advanced"
	EventAllQuestionsAsked EventKind = "all_questions_asked"
	EventDisconnected      EventKind = "disconnected"
)

// Event is one notification from the provider.
type Event struct {
	Kind          EventKind             `json:"kind"`
	Turn          *types.TranscriptTurn `json:"turn,omitempty"`
	QuestionIndex int                   `json:"question_index,omitempty"`
	Reason        string                `json:"reason,omitempty"`
}

// Validate checks that the event carries what its kind needs.
func (e Event) Validate() error {
	switch e.Kind {
	case EventTurn:
		if e.Turn == nil {
			return &types.ValidationError{Field: "turn", Message: "turn event without turn"}
		}
		if !e.Turn.Role.Valid() {
			return &types.ValidationError{Field: "turn.role", Message: "unsupported role " + string(e.Turn.Role)}
		}
	case EventQuestionAdvanced:
		if e.QuestionIndex < 0 {
			return &types.ValidationError{Field: "question_index", Message: "must not be negative"}
		}
	case EventAllQuestionsAsked, EventDisconnected:
	default:
		return &types.ValidationError{Field: "kind", Message: "unsupported event kind " + string(e.Kind)}
	}
	return nil
}
