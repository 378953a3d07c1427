package voice

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// session is the in-memory coordinator for one voice interview. Its fields are
// guarded by mu; flushMu serialises transcript writes so turns land in order.
type session struct {
	mu      sync.Mutex
	flushMu sync.Mutex

	id          uuid.UUID
	owner       types.Identity
	level       int
	interviewID uuid.UUID
	questions   []types.Question

	phase         Phase
	ending        bool
	connecting    bool
	questionIndex int
	startedAt     time.Time
	lastActivity  time.Time
	endedAt       time.Time
	descriptor    *types.SignalingDescriptor
	feedbackID    *uuid.UUID
	errMsg        string
	// orphaned marks an ERROR session whose interview is still to be abandoned.
	orphaned bool

	pending []types.TranscriptTurn
	cancel  context.CancelFunc
	done    chan struct{}
	subs    map[chan Status]struct{}
}

// setPhase must be called with mu held.
func (s *session) setPhase(to Phase, now time.Time) error {
	if !CanTransition(s.phase, to) {
		return &TransitionError{From: s.phase, To: to}
	}
	s.phase = to
	s.lastActivity = now
	if to.Terminal() {
		s.endedAt = now
		s.ending = false
	}
	s.publish(now)
	return nil
}

// adopt mirrors a terminal state found on the persisted interview, which always
// wins over the session's own view. mu must be held.
func (s *session) adopt(to Phase, now time.Time) {
	if s.phase.Terminal() {
		return
	}
	s.phase = to
	s.lastActivity = now
	s.endedAt = now
	s.ending = false
	s.publish(now)
}

// status must be called with mu held.
func (s *session) status(now time.Time) Status {
	end := now
	if s.phase.Terminal() {
		end = s.endedAt
	}
	st := Status{
		SessionID:            s.id,
		InterviewID:          s.interviewID,
		Level:                s.level,
		Phase:                s.phase,
		CurrentQuestionIndex: s.questionIndex,
		TotalQuestions:       len(s.questions),
		StartedAt:            s.startedAt,
		ElapsedSeconds:       int64(end.Sub(s.startedAt) / time.Second),
		Error:                s.errMsg,
	}
	if s.feedbackID != nil {
		id := *s.feedbackID
		st.FeedbackID = &id
	}
	return st
}

// publish pushes the current status to subscribers, replacing the oldest queued
// status when a subscriber lags. Terminal statuses close the streams. mu must be held.
func (s *session) publish(now time.Time) {
	st := s.status(now)
	for ch := range s.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
		if st.Phase.Terminal() {
			close(ch)
		}
	}
	if st.Phase.Terminal() {
		s.subs = nil
	}
}

// currentQuestionID returns the snapshot question at the current index. mu must be held.
func (s *session) currentQuestionID() *string {
	if s.questionIndex < 0 || s.questionIndex >= len(s.questions) {
		return nil
	}
	id := s.questions[s.questionIndex].QuestionID
	return &id
}

// resumeIndex places a resumed session on the last question the transcript reached.
func resumeIndex(iv *types.Interview) int {
	idx := 0
	for _, t := range iv.Transcript {
		if t.QuestionID == nil {
			continue
		}
		for i, q := range iv.Questions {
			if q.QuestionID == *t.QuestionID && i > idx {
				idx = i
			}
		}
	}
	return idx
}
