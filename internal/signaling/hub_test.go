package signaling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
	"github.com/SelfScore/Self-Score-sub000/internal/voice"
)

func TestPublish_UnknownSession(t *testing.T) {
	err := NewHub().Publish(context.Background(), uuid.New(), voice.Event{Kind: voice.EventAllQuestionsAsked})
	var nf *types.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestPublish_RejectsMalformedEvent(t *testing.T) {
	hub := NewHub()
	id := uuid.New()
	hub.Attach(id)

	err := hub.Publish(context.Background(), id, voice.Event{Kind: voice.EventTurn})
	var ve *types.ValidationError
	assert.ErrorAs(t, err, &ve)

	err = hub.Publish(context.Background(), id, voice.Event{Kind: "noise"})
	assert.ErrorAs(t, err, &ve)
}

func TestPublish_ClosedLink(t *testing.T) {
	hub := NewHub()
	id := uuid.New()
	l := hub.Attach(id)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	err := hub.Publish(context.Background(), id, voice.Event{Kind: voice.EventDisconnected})
	var nf *types.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestPublish_FullBufferHonoursContext(t *testing.T) {
	hub := NewHub()
	id := uuid.New()
	hub.Attach(id)
	for i := 0; i < linkBuffer; i++ {
		require.NoError(t, hub.Publish(context.Background(), id, voice.Event{Kind: voice.EventQuestionAdvanced, QuestionIndex: i}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := hub.Publish(ctx, id, voice.Event{Kind: voice.EventAllQuestionsAsked})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAttach_ReplacesPreviousLink(t *testing.T) {
	hub := NewHub()
	id := uuid.New()
	old := hub.Attach(id)
	current := hub.Attach(id)

	require.NoError(t, hub.Publish(context.Background(), id, voice.Event{Kind: voice.EventAllQuestionsAsked}))
	select {
	case <-current.Events():
	case <-time.After(time.Second):
		t.Fatal("event not delivered to current link")
	}
	require.NoError(t, old.Close())
	assert.True(t, hub.Attached(id))
}
