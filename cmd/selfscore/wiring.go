package main

import (
	"context"
	"fmt"

	"github.com/SelfScore/Self-Score-sub000/internal/catalog"
	"github.com/SelfScore/Self-Score-sub000/internal/config"
	"github.com/SelfScore/Self-Score-sub000/internal/db"
	"github.com/SelfScore/Self-Score-sub000/internal/feedback"
	"github.com/SelfScore/Self-Score-sub000/internal/interview"
	"github.com/SelfScore/Self-Score-sub000/internal/llm"
	"github.com/SelfScore/Self-Score-sub000/internal/memstore"
	"github.com/SelfScore/Self-Score-sub000/internal/retry"
	"github.com/SelfScore/Self-Score-sub000/internal/review"
)

// store is everything the services persist through. Both *db.DB and
// *memstore.Store satisfy it.
type store interface {
	interview.Store
	feedback.Store
	review.Store
}

var (
	_ store = (*db.DB)(nil)
	_ store = (*memstore.Store)(nil)
)

// openDatabase connects to Postgres and applies the schema.
func openDatabase(ctx context.Context, c *config.Config) (*db.DB, error) {
	if c.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	database, err := db.Connect(ctx, c.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func loadCatalog(c *config.Config) (catalog.Provider, error) {
	if c.Catalog.Path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(c.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load question catalog: %w", err)
	}
	return cat, nil
}

func retryPolicy(c *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Provider.MaxAttempts,
		BaseDelay:   c.Provider.BaseDelay,
		MaxDelay:    c.Provider.MaxDelay,
	}
}

// newScorer builds the Gemini-backed scorer. The returned close func releases the client.
func newScorer(ctx context.Context, c *config.Config) (feedback.Scorer, func(), error) {
	if c.LLM.APIKey == "" {
		return nil, nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	client, err := llm.NewClient(ctx, llm.DefaultConfig(), c.LLM.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return feedback.NewLLMScorer(client, c.LLM.Categories), func() { _ = client.Close() }, nil
}

// newInterviewService wires the interview service. scorer may be nil for commands
// that never generate feedback.
func newInterviewService(c *config.Config, st store, scorer feedback.Scorer) (*interview.Service, error) {
	questions, err := loadCatalog(c)
	if err != nil {
		return nil, err
	}
	fb := feedback.NewService(st, scorer, retryPolicy(c))
	return interview.NewService(st, questions, fb), nil
}
