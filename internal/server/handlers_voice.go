package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
	"github.com/SelfScore/Self-Score-sub000/internal/voice"
)

// sseKeepAlive is how often an idle status stream sends a comment line.
const sseKeepAlive = 15 * time.Second

// handleStartVoiceSession opens (or returns the live) voice session for a level.
func (s *Server) handleStartVoiceSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req types.StartVoiceSessionRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	res, err := s.voice.Start(r.Context(), id, req.Level)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	s.jsonResponse(w, status, res)
}

func (s *Server) handleBeginVoiceSession(w http.ResponseWriter, r *http.Request) {
	id, sessionID, ok := s.caller(w, r)
	if !ok {
		return
	}
	st, err := s.voice.Begin(r.Context(), id, sessionID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, st)
}

func (s *Server) handleVoiceStatus(w http.ResponseWriter, r *http.Request) {
	id, sessionID, ok := s.caller(w, r)
	if !ok {
		return
	}
	st, err := s.voice.Status(r.Context(), id, sessionID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, st)
}

func (s *Server) handleEndVoiceSession(w http.ResponseWriter, r *http.Request) {
	id, sessionID, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req types.EndVoiceSessionRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	st, err := s.voice.End(r.Context(), id, sessionID, voice.EndReason(req.Reason))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, st)
}

// handleVoiceEvents streams every status change of a session as server-sent
// events until the session reaches a terminal phase or the client goes away.
func (s *Server) handleVoiceEvents(w http.ResponseWriter, r *http.Request) {
	id, sessionID, ok := s.caller(w, r)
	if !ok {
		return
	}
	current, err := s.voice.Status(r.Context(), id, sessionID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	updates, cancel, err := s.voice.Subscribe(id, sessionID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	defer cancel()

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := sse.WriteEvent("status", current); err != nil || current.Phase.Terminal() {
		return
	}

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			// Dropping the stream does not end the session. A client that goes
			// away without End is abandoned by the orchestrator's idle sweep.
			return
		case <-ticker.C:
			if err := sse.WriteComment("keepalive"); err != nil {
				return
			}
		case st, open := <-updates:
			if !open {
				return
			}
			if err := sse.WriteEvent("status", st); err != nil {
				log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("status stream closed")
				return
			}
			if st.Phase.Terminal() {
				return
			}
		}
	}
}

// handleProviderEvent receives conversation events from the voice provider and
// routes them to the session's link.
func (s *Server) handleProviderEvent(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret == "" || s.hub == nil {
		s.errorResponse(w, http.StatusNotFound, "provider webhook not configured")
		return
	}
	given := r.Header.Get(WebhookSecretHeader)
	if subtle.ConstantTimeCompare([]byte(given), []byte(s.webhookSecret)) != 1 {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessionID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var ev providerEvent
	if !s.decodeRequest(w, r, &ev) {
		return
	}

	if err := s.hub.Publish(r.Context(), sessionID, ev.Event); err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// providerEvent adapts voice.Event to decodeRequest.
type providerEvent struct {
	voice.Event
}

func (e *providerEvent) Validate() error {
	return e.Event.Validate()
}
