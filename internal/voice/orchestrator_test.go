package voice_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SelfScore/Self-Score-sub000/internal/catalog"
	"github.com/SelfScore/Self-Score-sub000/internal/feedback"
	"github.com/SelfScore/Self-Score-sub000/internal/interview"
	"github.com/SelfScore/Self-Score-sub000/internal/memstore"
	"github.com/SelfScore/Self-Score-sub000/internal/retry"
	"github.com/SelfScore/Self-Score-sub000/internal/types"
	"github.com/SelfScore/Self-Score-sub000/internal/voice"
)

type fakeLink struct {
	events chan voice.Event
	once   sync.Once
	closed chan struct{}
}

func (l *fakeLink) Events() <-chan voice.Event { return l.events }

func (l *fakeLink) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

type fakeProvider struct {
	mu          sync.Mutex
	createFails int
	connectErr  error
	links       map[uuid.UUID]*fakeLink
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{links: make(map[uuid.UUID]*fakeLink)}
}

func (p *fakeProvider) CreateChannel(_ context.Context, sessionID uuid.UUID, _ *types.Interview) (*types.SignalingDescriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createFails > 0 {
		p.createFails--
		return nil, errors.New("signaling unavailable")
	}
	return &types.SignalingDescriptor{ChannelURL: "wss://voice.test/" + sessionID.String(), Token: "t"}, nil
}

func (p *fakeProvider) Connect(_ context.Context, sessionID uuid.UUID) (voice.Link, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	l := &fakeLink{events: make(chan voice.Event), closed: make(chan struct{})}
	p.links[sessionID] = l
	return l, nil
}

func (p *fakeProvider) link(sessionID uuid.UUID) *fakeLink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.links[sessionID]
}

type okScorer struct{}

func (okScorer) Score(context.Context, *types.Interview) (*types.Feedback, error) {
	return &types.Feedback{TotalScore: 50, FinalAssessment: "fine"}, nil
}

// gateScorer blocks until release is closed.
type gateScorer struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGateScorer() *gateScorer {
	return &gateScorer{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateScorer) Score(ctx context.Context, iv *types.Interview) (*types.Feedback, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return okScorer{}.Score(ctx, iv)
}

// flakyInterviews fails the first abandonFails calls to Abandon.
type flakyInterviews struct {
	*interview.Service
	mu           sync.Mutex
	abandonFails int
}

func (f *flakyInterviews) Abandon(ctx context.Context, id types.Identity, interviewID uuid.UUID, reason string) (*types.Interview, error) {
	f.mu.Lock()
	if f.abandonFails > 0 {
		f.abandonFails--
		f.mu.Unlock()
		return nil, errors.New("store unavailable")
	}
	f.mu.Unlock()
	return f.Service.Abandon(ctx, id, interviewID, reason)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	orch       *voice.Orchestrator
	interviews *interview.Service
	provider   *fakeProvider
	clock      *clock
	user       types.Identity
}

var fast = retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, okScorer{}, nil)
}

// newFixtureWith builds a fixture with the given scorer. wrap, when set, decorates
// the interview service the orchestrator sees.
func newFixtureWith(t *testing.T, scorer feedback.Scorer, wrap func(*interview.Service) voice.Interviews) *fixture {
	t.Helper()
	store := memstore.New()
	fb := feedback.NewService(store, scorer, fast)
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	interviews := interview.NewService(store, catalog.Default(), fb, interview.WithClock(c.Now))
	var seen voice.Interviews = interviews
	if wrap != nil {
		seen = wrap(interviews)
	}
	provider := newFakeProvider()
	orch := voice.NewOrchestrator(seen, provider, voice.Config{
		IdleTimeout: time.Minute,
		Retention:   5 * time.Minute,
		Retry:       fast,
	})
	orch.SetClock(c.Now)
	t.Cleanup(orch.Close)
	return &fixture{orch: orch, interviews: interviews, provider: provider, clock: c, user: types.Identity{UserID: uuid.New()}}
}

func (f *fixture) active(t *testing.T) (voice.Status, *fakeLink) {
	t.Helper()
	ctx := context.Background()
	started, err := f.orch.Start(ctx, f.user, 1)
	require.NoError(t, err)
	require.Equal(t, voice.PhaseReady, started.Status.Phase)

	st, err := f.orch.Begin(ctx, f.user, started.Status.SessionID)
	require.NoError(t, err)
	require.Equal(t, voice.PhaseActive, st.Phase)
	return st, f.provider.link(st.SessionID)
}

func (f *fixture) phase(t *testing.T, sessionID uuid.UUID) voice.Phase {
	t.Helper()
	st, err := f.orch.Status(context.Background(), f.user, sessionID)
	if !assert.NoError(t, err) {
		return ""
	}
	return st.Phase
}

func TestVoiceSession_CompletesWithTranscript(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st, link := f.active(t)
	assert.Equal(t, 5, st.TotalQuestions)

	link.events <- voice.Event{Kind: voice.EventTurn, Turn: &types.TranscriptTurn{Role: types.RoleAssistant, Content: "First question"}}
	link.events <- voice.Event{Kind: voice.EventTurn, Turn: &types.TranscriptTurn{Role: types.RoleUser, Content: "My answer"}}
	link.events <- voice.Event{Kind: voice.EventQuestionAdvanced, QuestionIndex: 1}
	link.events <- voice.Event{Kind: voice.EventTurn, Turn: &types.TranscriptTurn{Role: types.RoleAssistant, Content: "Second question"}}

	require.Eventually(t, func() bool {
		s, err := f.orch.Status(ctx, f.user, st.SessionID)
		if err != nil || s.CurrentQuestionIndex != 1 {
			return false
		}
		iv, err := f.interviews.GetInterview(ctx, f.user, st.InterviewID)
		return err == nil && len(iv.Transcript) == 3
	}, time.Second, 5*time.Millisecond)

	ended, err := f.orch.End(ctx, f.user, st.SessionID, voice.EndCompleted)
	require.NoError(t, err)
	assert.Equal(t, voice.PhaseCompleted, ended.Phase)
	require.NotNil(t, ended.FeedbackID)

	iv, err := f.interviews.GetInterview(ctx, f.user, st.InterviewID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, iv.Status)
	require.Len(t, iv.Transcript, 3)
	assert.Equal(t, "First question", iv.Transcript[0].Content)
	assert.Equal(t, "l1-q1", *iv.Transcript[1].QuestionID)
	assert.Equal(t, "l1-q2", *iv.Transcript[2].QuestionID)

	<-link.closed

	again, err := f.orch.End(ctx, f.user, st.SessionID, voice.EndAbandoned)
	require.NoError(t, err)
	assert.Equal(t, voice.PhaseCompleted, again.Phase)
}

func TestVoiceSession_DisconnectAbandons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st, link := f.active(t)

	link.events <- voice.Event{Kind: voice.EventTurn, Turn: &types.TranscriptTurn{Role: types.RoleUser, Content: "hello"}}
	link.events <- voice.Event{Kind: voice.EventDisconnected, Reason: "client gone"}

	require.Eventually(t, func() bool {
		return f.phase(t, st.SessionID) == voice.PhaseAbandoned
	}, time.Second, 5*time.Millisecond)

	iv, err := f.interviews.GetInterview(ctx, f.user, st.InterviewID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAbandoned, iv.Status)
	assert.Len(t, iv.Transcript, 1)
	require.NotNil(t, iv.AbandonReason)
	assert.Contains(t, *iv.AbandonReason, "client gone")
}

func TestVoiceSession_SilentClientIsSweptToAbandoned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st, _ := f.active(t)

	f.clock.Advance(2 * time.Minute)
	report := f.orch.Sweep(ctx)
	assert.Equal(t, 1, report.Abandoned)
	assert.Equal(t, voice.PhaseAbandoned, f.phase(t, st.SessionID))

	iv, err := f.interviews.GetInterview(ctx, f.user, st.InterviewID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAbandoned, iv.Status)

	f.clock.Advance(10 * time.Minute)
	report = f.orch.Sweep(ctx)
	assert.Equal(t, 1, report.Disposed)
	_, err = f.orch.Status(ctx, f.user, st.SessionID)
	var nf *types.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestVoiceSession_StatusCheckAbandonsIdleSession(t *testing.T) {
	f := newFixture(t)
	st, _ := f.active(t)

	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, voice.PhaseAbandoned, f.phase(t, st.SessionID))
}

func TestVoiceSession_AllQuestionsAskedCompletes(t *testing.T) {
	f := newFixture(t)
	st, link := f.active(t)

	link.events <- voice.Event{Kind: voice.EventAllQuestionsAsked}
	require.Eventually(t, func() bool {
		return f.phase(t, st.SessionID) == voice.PhaseCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestVoiceSession_StartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.orch.Start(ctx, f.user, 2)
	require.NoError(t, err)
	second, err := f.orch.Start(ctx, f.user, 2)
	require.NoError(t, err)
	assert.Equal(t, first.Status.SessionID, second.Status.SessionID)
	assert.True(t, second.Resumed)
	assert.Equal(t, first.Descriptor, second.Descriptor)
}

func TestVoiceSession_SignalingFailureKeepsInterviewResumable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.provider.createFails = 2

	_, err := f.orch.Start(ctx, f.user, 1)
	var pf *types.ProviderFailureError
	require.ErrorAs(t, err, &pf)

	res, err := f.orch.Start(ctx, f.user, 1)
	require.NoError(t, err)
	assert.Equal(t, voice.PhaseReady, res.Status.Phase)
	assert.True(t, res.Resumed)

	iv, err := f.interviews.GetInterview(ctx, f.user, res.Status.InterviewID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, iv.Status)
}

func TestVoiceSession_ConnectFailureIsError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.provider.connectErr = errors.New("no route")

	started, err := f.orch.Start(ctx, f.user, 1)
	require.NoError(t, err)
	_, err = f.orch.Begin(ctx, f.user, started.Status.SessionID)
	var pf *types.ProviderFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, voice.PhaseError, f.phase(t, started.Status.SessionID))

	iv, err := f.interviews.GetInterview(ctx, f.user, started.Status.InterviewID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAbandoned, iv.Status)
	require.NotNil(t, iv.AbandonReason)
	assert.Equal(t, voice.ReasonFailed, *iv.AbandonReason)
}

func TestVoiceSession_SweepAbandonsInterviewOfFailedSession(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyInterviews{abandonFails: 1}
	f := newFixtureWith(t, okScorer{}, func(s *interview.Service) voice.Interviews {
		flaky.Service = s
		return flaky
	})
	f.provider.connectErr = errors.New("no route")

	started, err := f.orch.Start(ctx, f.user, 1)
	require.NoError(t, err)
	_, err = f.orch.Begin(ctx, f.user, started.Status.SessionID)
	require.Error(t, err)
	assert.Equal(t, voice.PhaseError, f.phase(t, started.Status.SessionID))

	iv, err := f.interviews.GetInterview(ctx, f.user, started.Status.InterviewID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, iv.Status)

	report := f.orch.Sweep(ctx)
	assert.Equal(t, 1, report.Abandoned)
	assert.Equal(t, 1, report.Live)

	iv, err = f.interviews.GetInterview(ctx, f.user, started.Status.InterviewID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAbandoned, iv.Status)
	assert.Equal(t, voice.PhaseError, f.phase(t, started.Status.SessionID))

	report = f.orch.Sweep(ctx)
	assert.Equal(t, 0, report.Abandoned)

	f.clock.Advance(10 * time.Minute)
	report = f.orch.Sweep(ctx)
	assert.Equal(t, 1, report.Disposed)
	assert.Equal(t, 0, report.Live)
}

func TestVoiceSession_CompleteWhileCompletingIsNoop(t *testing.T) {
	ctx := context.Background()
	scorer := newGateScorer()
	f := newFixtureWith(t, scorer, nil)
	st, _ := f.active(t)

	first := make(chan voice.Status, 1)
	go func() {
		ended, err := f.orch.End(ctx, f.user, st.SessionID, voice.EndCompleted)
		assert.NoError(t, err)
		first <- ended
	}()
	<-scorer.entered
	assert.Equal(t, voice.PhaseCompleting, f.phase(t, st.SessionID))

	again, err := f.orch.End(ctx, f.user, st.SessionID, voice.EndCompleted)
	require.NoError(t, err)
	assert.Equal(t, voice.PhaseCompleting, again.Phase)

	close(scorer.release)
	ended := <-first
	assert.Equal(t, voice.PhaseCompleted, ended.Phase)
	require.NotNil(t, ended.FeedbackID)
}

func TestVoiceSession_TextInterviewInProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.interviews.StartOrResume(ctx, f.user, 1, types.ModeText)
	require.NoError(t, err)

	_, err = f.orch.Start(ctx, f.user, 1)
	assert.True(t, interview.IsInvalidState(err))
}

func TestVoiceSession_EndGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	started, err := f.orch.Start(ctx, f.user, 1)
	require.NoError(t, err)
	id := started.Status.SessionID

	_, err = f.orch.End(ctx, f.user, id, voice.EndCompleted)
	assert.True(t, interview.IsInvalidState(err))

	stranger := types.Identity{UserID: uuid.New()}
	_, err = f.orch.Status(ctx, stranger, id)
	var na *types.NotAuthorizedError
	assert.ErrorAs(t, err, &na)

	_, err = f.orch.End(ctx, f.user, id, voice.EndReason("paused"))
	var ve *types.ValidationError
	assert.ErrorAs(t, err, &ve)

	st, err := f.orch.End(ctx, f.user, id, voice.EndAbandoned)
	require.NoError(t, err)
	assert.Equal(t, voice.PhaseAbandoned, st.Phase)

	_, err = f.orch.Begin(ctx, f.user, id)
	assert.True(t, interview.IsInvalidState(err))
}

func TestVoiceSession_RecordWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st, link := f.active(t)

	_, err := f.interviews.Abandon(ctx, f.user, st.InterviewID, "abandoned elsewhere")
	require.NoError(t, err)

	assert.Equal(t, voice.PhaseAbandoned, f.phase(t, st.SessionID))
	<-link.closed
}

func TestVoiceSession_Subscribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st, link := f.active(t)

	updates, cancel, err := f.orch.Subscribe(f.user, st.SessionID)
	require.NoError(t, err)
	defer cancel()

	first := <-updates
	assert.Equal(t, voice.PhaseActive, first.Phase)

	link.events <- voice.Event{Kind: voice.EventQuestionAdvanced, QuestionIndex: 2}
	_, err = f.orch.End(ctx, f.user, st.SessionID, voice.EndCompleted)
	require.NoError(t, err)

	var last voice.Status
	for s := range updates {
		last = s
	}
	assert.Equal(t, voice.PhaseCompleted, last.Phase)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, voice.CanTransition(voice.PhaseReady, voice.PhaseActive))
	assert.True(t, voice.CanTransition(voice.PhaseCompleting, voice.PhaseCompleted))
	assert.False(t, voice.CanTransition(voice.PhaseReady, voice.PhaseCompleted))
	assert.False(t, voice.CanTransition(voice.PhaseCompleted, voice.PhaseActive))
	assert.False(t, voice.CanTransition(voice.PhaseError, voice.PhaseReady))
}
