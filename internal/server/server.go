// Package server provides the HTTP API for interview sessions, voice sessions and
// human review.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/SelfScore/Self-Score-sub000/internal/interview"
	"github.com/SelfScore/Self-Score-sub000/internal/review"
	"github.com/SelfScore/Self-Score-sub000/internal/server/middleware"
	"github.com/SelfScore/Self-Score-sub000/internal/server/ratelimit"
	"github.com/SelfScore/Self-Score-sub000/internal/signaling"
	"github.com/SelfScore/Self-Score-sub000/internal/voice"
)

// WebhookSecretHeader carries the shared secret on provider webhook calls.
const WebhookSecretHeader = "X-Webhook-Secret"

// Config holds server configuration
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
	WebhookSecret   string
}

// Deps are the services the API exposes.
type Deps struct {
	Interviews *interview.Service
	Voice      *voice.Orchestrator
	Hub        *signaling.Hub
	Reviews    *review.Workflow
	JWT        *JWTService
	Limiter    *ratelimit.Limiter
	// Ping reports storage health. Nil means always healthy.
	Ping func(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer    *http.Server
	interviews    *interview.Service
	voice         *voice.Orchestrator
	hub           *signaling.Hub
	reviews       *review.Workflow
	jwtService    *JWTService
	rateLimiter   *ratelimit.Limiter
	ping          func(ctx context.Context) error
	webhookSecret string
	shutdown      time.Duration
}

// New creates a new server instance
func New(cfg Config, deps Deps) *Server {
	s := &Server{
		interviews:    deps.Interviews,
		voice:         deps.Voice,
		hub:           deps.Hub,
		reviews:       deps.Reviews,
		jwtService:    deps.JWT,
		rateLimiter:   deps.Limiter,
		ping:          deps.Ping,
		webhookSecret: cfg.WebhookSecret,
		shutdown:      cfg.ShutdownTimeout,
	}
	if s.rateLimiter == nil {
		s.rateLimiter = ratelimit.NewLimiter(&ratelimit.Config{Enabled: false})
	}
	if s.shutdown <= 0 {
		s.shutdown = 30 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: status streams stay open for the whole session.
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	auth := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Interviews
	mux.Handle("POST /interviews", protected(s.handleStartInterview))
	mux.Handle("GET /interviews/{id}", protected(s.handleGetInterview))
	mux.Handle("POST /interviews/{id}/answers", protected(s.handleSubmitAnswer))
	mux.Handle("POST /interviews/{id}/transcript", protected(s.handleAppendTranscript))
	mux.Handle("POST /interviews/{id}/complete", protected(s.handleCompleteInterview))
	mux.Handle("POST /interviews/{id}/abandon", protected(s.handleAbandonInterview))
	mux.Handle("GET /interviews/{id}/feedback", protected(s.handleGetFeedback))
	mux.Handle("POST /interviews/{id}/feedback/retry", protected(s.handleRetryFeedback))

	// Voice sessions
	mux.Handle("POST /voice/sessions", protected(s.handleStartVoiceSession))
	mux.Handle("GET /voice/sessions/{id}", protected(s.handleVoiceStatus))
	mux.Handle("POST /voice/sessions/{id}/begin", protected(s.handleBeginVoiceSession))
	mux.Handle("POST /voice/sessions/{id}/end", protected(s.handleEndVoiceSession))
	mux.Handle("GET /voice/sessions/{id}/events", protected(s.handleVoiceEvents))

	// Provider webhook, authenticated by shared secret
	mux.HandleFunc("POST /voice/provider/sessions/{id}/events", s.handleProviderEvent)

	// Review
	mux.Handle("GET /reviews/submissions", protected(s.handleListSubmissions))
	mux.Handle("GET /reviews/submissions/{id}", protected(s.handleLoadSubmission))
	mux.Handle("PUT /reviews/submissions/{id}/draft", protected(s.handleSaveDraft))
	mux.Handle("POST /reviews/submissions/{id}/submit", protected(s.handleSubmitReview))

	return s.withRateLimit(s.withLogging(s.withCORS(mux)))
}

// Run serves until ctx ends, running the voice sweeper alongside, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("server starting")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if s.voice != nil {
		g.Go(func() error {
			return s.voice.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.rateLimiter.Stop()
		log.Info().Msg("server stopped")
		return nil
	})

	return g.Wait()
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps streaming responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			log.Warn().Err(err).Msg("health check failed")
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("error encoding JSON response")
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// serviceError maps a service error to its status. Internal details of 5xx errors
// are logged, not returned.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		message = http.StatusText(status)
	}
	s.jsonResponse(w, status, map[string]string{"error": message, "code": errorCode(err)})
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}

	if info.RetryAfter > 0 {
		retryAfter := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = retryAfter
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	}

	log.Warn().Int("limit", info.Limit).Int("remaining", info.Remaining).Msg("rate limit exceeded")
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
