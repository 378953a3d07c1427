package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SelfScore/Self-Score-sub000/internal/interview"
	"github.com/SelfScore/Self-Score-sub000/internal/retry"
	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// Interviews is the part of the interview service a voice session drives.
type Interviews interface {
	StartOrResume(ctx context.Context, id types.Identity, level int, mode types.Mode) (*interview.StartResult, error)
	GetInterview(ctx context.Context, id types.Identity, interviewID uuid.UUID) (*types.Interview, error)
	AppendTranscriptBatch(ctx context.Context, id types.Identity, interviewID uuid.UUID, turns []types.TranscriptTurn) error
	Finalize(ctx context.Context, id types.Identity, interviewID uuid.UUID) (*interview.FinalizeResult, error)
	Abandon(ctx context.Context, id types.Identity, interviewID uuid.UUID, reason string) (*types.Interview, error)
}

// Config bounds session lifetimes.
type Config struct {
	// IdleTimeout abandons a non-terminal session with no activity for this long.
	IdleTimeout time.Duration
	// Retention keeps terminal sessions pollable for this long before disposal.
	Retention time.Duration
	// SweepInterval is how often Run sweeps.
	SweepInterval time.Duration
	// Retry applies to signaling provider calls and transcript flushes.
	Retry retry.Policy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:   5 * time.Minute,
		Retention:     15 * time.Minute,
		SweepInterval: 30 * time.Second,
		Retry:         retry.DefaultPolicy(),
	}
}

// Abandon reasons recorded on the interview.
const (
	ReasonIdle         = "voice session idle timeout"
	ReasonClientEnded  = "voice session ended by client"
	ReasonDisconnected = "voice link disconnected"
	ReasonFailed       = "voice session failed"
)

type sessionKey struct {
	userID uuid.UUID
	level  int
}

// Orchestrator owns every live voice session of this process.
type Orchestrator struct {
	interviews Interviews
	provider   SignalingProvider
	cfg        Config
	now        func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	byLevel  map[sessionKey]*session
	closed   bool
}

// NewOrchestrator creates an orchestrator. Zero durations in cfg take the defaults.
func NewOrchestrator(interviews Interviews, provider SignalingProvider, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = def.Retry
	}
	return &Orchestrator{
		interviews: interviews,
		provider:   provider,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		sessions:   make(map[uuid.UUID]*session),
		byLevel:    make(map[sessionKey]*session),
	}
}

// SetClock overrides the time source.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// StartResult is returned by Start.
type StartResult struct {
	Status     Status                     `json:"status"`
	Descriptor *types.SignalingDescriptor `json:"signaling,omitempty"`
	Resumed    bool                       `json:"resumed"`
}

// Start opens a voice session for the caller's IN_PROGRESS (or new) voice interview
// at level and reserves a signaling channel. Calling it again while a session for the
// same level is live returns that session.
func (o *Orchestrator) Start(ctx context.Context, id types.Identity, level int) (*StartResult, error) {
	if !id.Established() {
		return nil, &types.NotAuthorizedError{Reason: "no user identity"}
	}
	key := sessionKey{id.UserID, level}
	now := o.now()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, errors.New("voice orchestrator is shut down")
	}
	if s, ok := o.byLevel[key]; ok {
		s.mu.Lock()
		if !s.phase.Terminal() {
			res := &StartResult{Status: s.status(now), Descriptor: s.descriptor, Resumed: true}
			s.mu.Unlock()
			o.mu.Unlock()
			return res, nil
		}
		s.mu.Unlock()
	}
	s := &session{
		id:           uuid.New(),
		owner:        id,
		level:        level,
		phase:        PhaseInitializing,
		startedAt:    now,
		lastActivity: now,
		done:         make(chan struct{}),
		subs:         make(map[chan Status]struct{}),
	}
	o.sessions[s.id] = s
	o.byLevel[key] = s
	o.mu.Unlock()

	started, err := o.interviews.StartOrResume(ctx, id, level, types.ModeVoice)
	if err != nil {
		o.fail(s, err, false)
		return nil, err
	}
	iv := started.Interview
	if iv.Mode != types.ModeVoice {
		err := &types.InvalidStateError{
			Entity: "interview",
			ID:     iv.ID.String(),
			State:  fmt.Sprintf("%s/%s", iv.Mode, iv.Status),
			Op:     "start voice session for",
		}
		o.fail(s, err, false)
		return nil, err
	}

	s.mu.Lock()
	s.interviewID = iv.ID
	s.questions = iv.Questions
	s.questionIndex = resumeIndex(iv)
	s.mu.Unlock()

	var desc *types.SignalingDescriptor
	err = retry.Do(ctx, o.cfg.Retry, "signaling", func(ctx context.Context) error {
		d, err := o.provider.CreateChannel(ctx, s.id, iv)
		if err != nil {
			return err
		}
		desc = d
		return nil
	})
	if err != nil {
		// The interview stays IN_PROGRESS so a later Start resumes it.
		o.fail(s, err, false)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.descriptor = desc
	if err := s.setPhase(PhaseReady, o.now()); err != nil {
		return nil, &types.InvalidStateError{Entity: "voice session", ID: s.id.String(), State: string(s.phase), Op: "start"}
	}
	log.Info().Str("session_id", s.id.String()).Str("interview_id", iv.ID.String()).
		Str("user_id", id.UserID.String()).Int("level", level).Bool("resumed", started.Resumed).
		Msg("voice session ready")
	return &StartResult{Status: s.status(o.now()), Descriptor: desc, Resumed: started.Resumed}, nil
}

// Begin connects the real-time link of a READY session and starts bridging its events.
func (o *Orchestrator) Begin(ctx context.Context, id types.Identity, sessionID uuid.UUID) (Status, error) {
	s, err := o.lookup(id, sessionID)
	if err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	switch {
	case s.phase == PhaseActive, s.phase == PhaseReady && s.connecting:
		st := s.status(o.now())
		s.mu.Unlock()
		return st, nil
	case s.phase != PhaseReady || s.ending:
		st := s.status(o.now())
		s.mu.Unlock()
		return st, &types.InvalidStateError{Entity: "voice session", ID: sessionID.String(), State: string(st.Phase), Op: "begin"}
	}
	s.connecting = true
	s.lastActivity = o.now()
	s.mu.Unlock()

	var link Link
	err = retry.Do(ctx, o.cfg.Retry, "signaling", func(ctx context.Context) error {
		l, err := o.provider.Connect(ctx, sessionID)
		if err != nil {
			return err
		}
		link = l
		return nil
	})

	s.mu.Lock()
	s.connecting = false
	now := o.now()
	if err != nil {
		s.errMsg = err.Error()
		s.orphaned = true
		_ = s.setPhase(PhaseError, now)
		s.mu.Unlock()
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("voice link failed")
		o.release(context.WithoutCancel(ctx), s)
		return Status{}, err
	}
	if s.phase != PhaseReady || s.ending {
		st := s.status(now)
		s.mu.Unlock()
		_ = link.Close()
		return st, &types.InvalidStateError{Entity: "voice session", ID: sessionID.String(), State: string(st.Phase), Op: "begin"}
	}
	bctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	_ = s.setPhase(PhaseActive, now)
	st := s.status(now)
	s.mu.Unlock()

	go o.bridge(bctx, s, link)
	log.Info().Str("session_id", sessionID.String()).Str("interview_id", st.InterviewID.String()).Msg("voice session active")
	return st, nil
}

// Status returns the session's current view. A session idle past the timeout is
// abandoned first, and a terminal state on the interview record is adopted.
func (o *Orchestrator) Status(ctx context.Context, id types.Identity, sessionID uuid.UUID) (Status, error) {
	s, err := o.lookup(id, sessionID)
	if err != nil {
		return Status{}, err
	}
	if o.idle(s, o.now()) {
		if err := o.abandon(ctx, s, ReasonIdle, false); err != nil {
			return Status{}, err
		}
	}
	if err := o.reconcile(ctx, s); err != nil {
		return Status{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status(o.now()), nil
}

// End completes or abandons a session. Ending a terminal session is a no-op, and
// so is completing one that is already COMPLETING.
func (o *Orchestrator) End(ctx context.Context, id types.Identity, sessionID uuid.UUID, reason EndReason) (Status, error) {
	s, err := o.lookup(id, sessionID)
	if err != nil {
		return Status{}, err
	}

	switch reason {
	case EndCompleted:
		s.mu.Lock()
		if s.phase.Terminal() || s.phase == PhaseCompleting {
			st := s.status(o.now())
			s.mu.Unlock()
			return st, nil
		}
		if s.phase != PhaseActive || s.ending {
			st := s.status(o.now())
			s.mu.Unlock()
			return st, &types.InvalidStateError{Entity: "voice session", ID: sessionID.String(), State: string(st.Phase), Op: "complete"}
		}
		_ = s.setPhase(PhaseCompleting, o.now())
		s.mu.Unlock()

		o.stopBridge(s)
		o.finish(ctx, s)
	case EndAbandoned:
		if err := o.abandon(ctx, s, ReasonClientEnded, false); err != nil {
			return Status{}, err
		}
	default:
		return Status{}, &types.ValidationError{Field: "reason", Message: fmt.Sprintf("unsupported end reason %q", reason)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status(o.now()), nil
}

// Subscribe streams status changes of a session. The channel is closed after the
// terminal status or when cancel is called.
func (o *Orchestrator) Subscribe(id types.Identity, sessionID uuid.UUID) (<-chan Status, func(), error) {
	s, err := o.lookup(id, sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan Status, 8)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status(o.now())
	ch <- st
	if st.Phase.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}
	s.subs[ch] = struct{}{}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Abandoned int `json:"abandoned"`
	Disposed  int `json:"disposed"`
	Live      int `json:"live"`
}

// Sweep abandons idle sessions, abandons the interviews failed sessions still hold,
// and disposes terminal sessions past retention.
func (o *Orchestrator) Sweep(ctx context.Context) SweepReport {
	o.mu.Lock()
	all := make([]*session, 0, len(o.sessions))
	for _, s := range o.sessions {
		all = append(all, s)
	}
	o.mu.Unlock()

	var report SweepReport
	now := o.now()
	for _, s := range all {
		s.mu.Lock()
		orphaned := s.orphaned
		expired := s.phase.Terminal() && now.Sub(s.endedAt) > o.cfg.Retention
		s.mu.Unlock()

		switch {
		case orphaned:
			if o.release(ctx, s) {
				report.Abandoned++
			}
		case expired:
			o.dispose(s)
			report.Disposed++
		case o.idle(s, now):
			if err := o.abandon(ctx, s, ReasonIdle, false); err != nil {
				log.Error().Err(err).Str("session_id", s.id.String()).Msg("failed to abandon idle voice session")
				continue
			}
			report.Abandoned++
		}
	}

	o.mu.Lock()
	report.Live = len(o.sessions)
	o.mu.Unlock()
	return report
}

// Run sweeps on every interval until ctx ends, then closes the orchestrator.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			o.Close()
			return nil
		case <-ticker.C:
			r := o.Sweep(ctx)
			if r.Abandoned > 0 || r.Disposed > 0 {
				log.Info().Int("abandoned", r.Abandoned).Int("disposed", r.Disposed).Int("live", r.Live).
					Msg("voice sessions swept")
			}
		}
	}
}

// Close stops every bridge. Interviews stay IN_PROGRESS and can be resumed by a
// later Start, or are abandoned by the stale-interview sweep.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	all := make([]*session, 0, len(o.sessions))
	for _, s := range o.sessions {
		all = append(all, s)
	}
	o.mu.Unlock()

	for _, s := range all {
		o.stopBridge(s)
	}
}

func (o *Orchestrator) lookup(id types.Identity, sessionID uuid.UUID) (*session, error) {
	if !id.Established() {
		return nil, &types.NotAuthorizedError{Reason: "no user identity"}
	}
	o.mu.Lock()
	s, ok := o.sessions[sessionID]
	o.mu.Unlock()
	if !ok {
		return nil, &types.NotFoundError{Entity: "voice session", ID: sessionID.String()}
	}
	if !id.CanAccess(s.owner.UserID) {
		return nil, &types.NotAuthorizedError{Reason: "voice session belongs to another user"}
	}
	return s, nil
}

func (o *Orchestrator) idle(s *session, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.phase.Terminal() && s.phase != PhaseCompleting && !s.ending && !s.connecting &&
		now.Sub(s.lastActivity) > o.cfg.IdleTimeout
}

func (o *Orchestrator) dispose(s *session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sessions, s.id)
	key := sessionKey{s.owner.UserID, s.level}
	if o.byLevel[key] == s {
		delete(o.byLevel, key)
	}
}

// fail moves a non-terminal session to ERROR. When holdsRecord is set the interview
// is marked for release, which abandons it.
func (o *Orchestrator) fail(s *session, err error, holdsRecord bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.Terminal() {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.orphaned = holdsRecord && s.interviewID != uuid.Nil
	s.errMsg = err.Error()
	_ = s.setPhase(PhaseError, o.now())
	log.Error().Err(err).Str("session_id", s.id.String()).Str("interview_id", s.interviewID.String()).
		Msg("voice session failed")
}

// stopBridge cancels the session's bridge and waits for it to exit.
func (o *Orchestrator) stopBridge(s *session) {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// abandon abandons the interview and then the session. Completion already under
// way takes precedence.
func (o *Orchestrator) abandon(ctx context.Context, s *session, reason string, fromBridge bool) error {
	s.mu.Lock()
	if s.phase.Terminal() || s.phase == PhaseCompleting || s.ending {
		s.mu.Unlock()
		return nil
	}
	s.ending = true
	interviewID := s.interviewID
	s.mu.Unlock()

	if !fromBridge {
		o.stopBridge(s)
	}

	final := PhaseAbandoned
	if interviewID != uuid.Nil {
		if err := o.flush(ctx, s); err != nil {
			log.Warn().Err(err).Str("session_id", s.id.String()).Msg("dropping unflushed transcript turns")
		}
		iv, err := o.interviews.Abandon(ctx, s.owner, interviewID, reason)
		if err != nil {
			o.fail(s, err, true)
			return err
		}
		if iv != nil && iv.Status == types.StatusCompleted {
			final = PhaseCompleted
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if final == PhaseCompleted {
		s.adopt(PhaseCompleted, o.now())
	} else if err := s.setPhase(PhaseAbandoned, o.now()); err != nil {
		s.adopt(PhaseAbandoned, o.now())
	}
	log.Info().Str("session_id", s.id.String()).Str("interview_id", interviewID.String()).
		Str("reason", reason).Str("phase", string(s.phase)).Msg("voice session ended")
	return nil
}

// reconcile adopts a terminal status found on the interview record.
func (o *Orchestrator) reconcile(ctx context.Context, s *session) error {
	s.mu.Lock()
	skip := s.phase.Terminal() || s.phase == PhaseCompleting || s.phase == PhaseInitializing || s.ending
	interviewID := s.interviewID
	s.mu.Unlock()
	if skip {
		return nil
	}

	iv, err := o.interviews.GetInterview(ctx, s.owner, interviewID)
	if err != nil {
		return fmt.Errorf("failed to reconcile voice session: %w", err)
	}
	var to Phase
	switch iv.Status {
	case types.StatusAbandoned:
		to = PhaseAbandoned
	case types.StatusCompleted:
		to = PhaseCompleted
	default:
		return nil
	}

	o.stopBridge(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	if to == PhaseCompleted && s.feedbackID == nil {
		s.feedbackID = iv.FeedbackID
	}
	s.adopt(to, o.now())
	return nil
}

// flush writes buffered transcript turns in order.
func (o *Orchestrator) flush(ctx context.Context, s *session) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batch := append([]types.TranscriptTurn(nil), s.pending...)
	owner, interviewID := s.owner, s.interviewID
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	if err := o.interviews.AppendTranscriptBatch(ctx, owner, interviewID, batch); err != nil {
		return err
	}
	s.mu.Lock()
	s.pending = s.pending[len(batch):]
	s.mu.Unlock()
	return nil
}

// finish flushes and finalizes a COMPLETING session. If either step fails the
// session ends in ERROR and its interview is abandoned.
func (o *Orchestrator) finish(ctx context.Context, s *session) {
	err := retry.Do(ctx, o.cfg.Retry, "transcript", func(ctx context.Context) error {
		err := o.flush(ctx, s)
		if interview.IsInvalidState(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil && !interview.IsInvalidState(err) {
		o.fail(s, err, true)
		o.release(context.WithoutCancel(ctx), s)
		return
	}

	res, err := o.interviews.Finalize(ctx, s.owner, s.interviewID)

	s.mu.Lock()
	now := o.now()
	switch {
	case err == nil:
		s.feedbackID = res.FeedbackID
		_ = s.setPhase(PhaseCompleted, now)
	case res != nil && res.Interview != nil && res.Interview.Status == types.StatusCompleted:
		// Interview is complete; feedback is retried separately.
		s.errMsg = err.Error()
		_ = s.setPhase(PhaseCompleted, now)
	case interview.IsInvalidState(err):
		s.adopt(PhaseAbandoned, now)
	default:
		s.errMsg = err.Error()
		s.orphaned = true
		_ = s.setPhase(PhaseError, now)
	}
	orphaned := s.orphaned
	log.Info().Str("session_id", s.id.String()).Str("interview_id", s.interviewID.String()).
		Str("phase", string(s.phase)).Int("turns_pending", len(s.pending)).Msg("voice session finalized")
	s.mu.Unlock()

	if orphaned {
		o.release(context.WithoutCancel(ctx), s)
	}
}

// release abandons the interview of a failed session so the record does not stay
// IN_PROGRESS. It reports whether it did; a failed attempt is repeated by Sweep.
func (o *Orchestrator) release(ctx context.Context, s *session) bool {
	s.mu.Lock()
	if !s.orphaned {
		s.mu.Unlock()
		return false
	}
	owner, interviewID := s.owner, s.interviewID
	s.mu.Unlock()

	iv, err := o.interviews.Abandon(ctx, owner, interviewID, ReasonFailed)
	if err != nil {
		log.Warn().Err(err).Str("session_id", s.id.String()).Str("interview_id", interviewID.String()).
			Msg("failed to abandon interview of failed voice session")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orphaned = false
	if iv != nil && iv.Status == types.StatusCompleted && s.feedbackID == nil {
		s.feedbackID = iv.FeedbackID
	}
	log.Info().Str("session_id", s.id.String()).Str("interview_id", interviewID.String()).
		Str("status", string(iv.Status)).Msg("released interview of failed voice session")
	return true
}

// bridge mirrors provider events into the interview until the session ends.
func (o *Orchestrator) bridge(ctx context.Context, s *session, link Link) {
	defer close(s.done)
	defer func() { _ = link.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-link.Events():
			if !ok {
				_ = o.abandon(context.WithoutCancel(ctx), s, ReasonDisconnected, true)
				return
			}
			if err := ev.Validate(); err != nil {
				log.Warn().Err(err).Str("session_id", s.id.String()).Msg("ignoring malformed provider event")
				continue
			}
			switch ev.Kind {
			case EventTurn:
				o.recordTurn(ctx, s, *ev.Turn)
			case EventQuestionAdvanced:
				o.advance(s, ev.QuestionIndex)
			case EventAllQuestionsAsked:
				s.mu.Lock()
				if s.phase != PhaseActive || s.ending {
					s.mu.Unlock()
					continue
				}
				_ = s.setPhase(PhaseCompleting, o.now())
				s.mu.Unlock()
				o.finish(context.WithoutCancel(ctx), s)
				return
			case EventDisconnected:
				reason := ReasonDisconnected
				if ev.Reason != "" {
					reason = ReasonDisconnected + ": " + ev.Reason
				}
				_ = o.abandon(context.WithoutCancel(ctx), s, reason, true)
				return
			}
		}
	}
}

func (o *Orchestrator) recordTurn(ctx context.Context, s *session, turn types.TranscriptTurn) {
	s.mu.Lock()
	if s.phase != PhaseActive || s.ending {
		s.mu.Unlock()
		log.Warn().Str("session_id", s.id.String()).Msg("dropping transcript turn outside active phase")
		return
	}
	now := o.now()
	if turn.QuestionID == nil {
		turn.QuestionID = s.currentQuestionID()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = now
	}
	s.pending = append(s.pending, turn)
	s.lastActivity = now
	s.mu.Unlock()

	if err := o.flush(ctx, s); err != nil {
		log.Warn().Err(err).Str("session_id", s.id.String()).Msg("transcript flush deferred")
	}
}

func (o *Orchestrator) advance(s *session, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseActive || index >= len(s.questions) {
		return
	}
	s.questionIndex = index
	now := o.now()
	s.lastActivity = now
	s.publish(now)
}
