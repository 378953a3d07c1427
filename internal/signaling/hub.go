// Package signaling connects voice sessions to the external real-time voice provider.
// Channel setup goes over the provider's HTTP API; conversation events come back
// through a webhook and are routed to the session's link by a Hub.
package signaling

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
	"github.com/SelfScore/Self-Score-sub000/internal/voice"
)

const linkBuffer = 32

// Hub routes provider events to the link of their session.
type Hub struct {
	mu    sync.Mutex
	links map[uuid.UUID]*link
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{links: make(map[uuid.UUID]*link)}
}

// Attach opens the link for a session, replacing any previous one.
func (h *Hub) Attach(sessionID uuid.UUID) voice.Link {
	l := &link{
		hub:       h,
		sessionID: sessionID,
		events:    make(chan voice.Event, linkBuffer),
		done:      make(chan struct{}),
	}
	h.mu.Lock()
	old := h.links[sessionID]
	h.links[sessionID] = l
	h.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return l
}

// Publish delivers ev to the session's link. It blocks while the link's buffer is
// full, until ctx ends.
func (h *Hub) Publish(ctx context.Context, sessionID uuid.UUID, ev voice.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	l, ok := h.links[sessionID]
	h.mu.Unlock()
	if !ok {
		return &types.NotFoundError{Entity: "voice link", ID: sessionID.String()}
	}

	select {
	case l.events <- ev:
		return nil
	case <-l.done:
		return &types.NotFoundError{Entity: "voice link", ID: sessionID.String()}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attached reports whether a session currently has a link.
func (h *Hub) Attached(sessionID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.links[sessionID]
	return ok
}

func (h *Hub) detach(l *link) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.links[l.sessionID] == l {
		delete(h.links, l.sessionID)
	}
}

// link never closes its events channel; done signals the end instead so a
// concurrent Publish cannot send on a closed channel.
type link struct {
	hub       *Hub
	sessionID uuid.UUID
	events    chan voice.Event
	done      chan struct{}
	once      sync.Once
}

func (l *link) Events() <-chan voice.Event {
	return l.events
}

func (l *link) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.hub.detach(l)
	})
	return nil
}
