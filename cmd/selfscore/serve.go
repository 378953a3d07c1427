package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SelfScore/Self-Score-sub000/internal/config"
	"github.com/SelfScore/Self-Score-sub000/internal/feedback"
	"github.com/SelfScore/Self-Score-sub000/internal/memstore"
	"github.com/SelfScore/Self-Score-sub000/internal/review"
	"github.com/SelfScore/Self-Score-sub000/internal/server"
	"github.com/SelfScore/Self-Score-sub000/internal/server/ratelimit"
	"github.com/SelfScore/Self-Score-sub000/internal/signaling"
	"github.com/SelfScore/Self-Score-sub000/internal/voice"
)

var (
	servePort     int
	serveInMemory bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the HTTP API for interviews, voice sessions, feedback and reviews.

With --in-memory nothing is persisted and DATABASE_URL is not needed.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides SERVER_PORT)")
	serveCmd.Flags().BoolVar(&serveInMemory, "in-memory", false, "Keep all data in process memory")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	var (
		st   store
		ping func(ctx context.Context) error
	)
	if serveInMemory {
		log.Warn().Msg("using in-memory storage; data is lost on exit")
		st = memstore.New()
	} else {
		database, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		st = database
		ping = database.Ping
	}

	scorer, closeScorer, err := newScorer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeScorer()

	srv, err := buildServer(cfg, st, scorer, ping)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// buildServer wires every service behind the HTTP API.
func buildServer(c *config.Config, st store, scorer feedback.Scorer, ping func(ctx context.Context) error) (*server.Server, error) {
	interviews, err := newInterviewService(c, st, scorer)
	if err != nil {
		return nil, err
	}

	jwtCfg, err := c.JWTConfig()
	if err != nil {
		return nil, err
	}

	hub := signaling.NewHub()
	provider := signaling.NewHTTPProvider(signaling.Config{
		BaseURL:    c.Voice.SignalingURL,
		APIKey:     c.Voice.SignalingAPIKey,
		WebhookURL: c.Voice.WebhookBaseURL,
		STUNURLs:   c.Voice.STUNURLs,
	}, hub)
	orchestrator := voice.NewOrchestrator(interviews, provider, voice.Config{
		IdleTimeout:   c.Voice.IdleTimeout,
		Retention:     c.Voice.Retention,
		SweepInterval: c.Voice.SweepInterval,
		Retry:         retryPolicy(c),
	})
	if c.Voice.SignalingURL == "" {
		log.Info().Msg("no signaling provider configured; voice events arrive through the webhook only")
	}

	limiter := ratelimit.NewLimiter(&ratelimit.Config{
		Enabled:         c.RateLimit.Enabled,
		DefaultLimit:    c.RateLimit.DefaultLimit,
		DefaultWindow:   c.RateLimit.DefaultWindow,
		CleanupInterval: c.RateLimit.CleanupInterval,
		Whitelist:       ratelimit.ParseIPList(c.RateLimit.Whitelist),
		Blacklist:       ratelimit.ParseIPList(c.RateLimit.Blacklist),
		EndpointConfigs: ratelimit.DefaultEndpointConfigs(),
	})

	if c.Voice.WebhookSecret == "" {
		log.Warn().Msg("VOICE_WEBHOOK_SECRET is empty; provider webhooks are rejected")
	}

	srv := server.New(server.Config{
		Port:            c.Server.Port,
		ShutdownTimeout: c.Server.ShutdownTimeout,
		WebhookSecret:   c.Voice.WebhookSecret,
	}, server.Deps{
		Interviews: interviews,
		Voice:      orchestrator,
		Hub:        hub,
		Reviews:    review.NewWorkflow(st, nil, c.Review.Levels),
		JWT:        server.NewJWTService(jwtCfg),
		Limiter:    limiter,
		Ping:       ping,
	})
	return srv, nil
}
