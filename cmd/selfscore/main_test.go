package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SelfScore/Self-Score-sub000/internal/config"
	"github.com/SelfScore/Self-Score-sub000/internal/memstore"
	"github.com/SelfScore/Self-Score-sub000/internal/server"
	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// TestMain runs before all tests and loads .env if available
func TestMain(m *testing.M) {
	_ = godotenv.Load()
	os.Exit(m.Run())
}

type failingScorer struct{}

func (failingScorer) Score(context.Context, *types.Interview) (*types.Feedback, error) {
	return nil, errors.New("scoring disabled")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	tokenUser, tokenRole = "", server.RoleUser
	configPath, logLevel = "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "sweep", "token", "feedback"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")
	userID := uuid.New()

	out, err := execute(t, "token", "--user", userID.String(), "--role", "admin")
	require.NoError(t, err)

	jwtCfg, err := config.NewJWTConfig("cli-test-secret", 0)
	require.NoError(t, err)
	claims, err := server.NewJWTService(jwtCfg).ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, server.RoleAdmin, claims.Role)
}

func TestTokenCommand_Errors(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")

	_, err := execute(t, "token", "--role", "owner")
	assert.Error(t, err)

	_, err = execute(t, "token", "--user", "not-a-uuid")
	assert.Error(t, err)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := execute(t, "token")
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestSweepCommand_InvalidMode(t *testing.T) {
	defer func() { sweepMode = string(types.ModeVoice) }()

	_, err := execute(t, "sweep", "--mode", "smoke-signal")
	assert.ErrorContains(t, err, "invalid mode")
}

func TestBuildServer_InMemory(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")
	c, err := config.Load("")
	require.NoError(t, err)

	srv, err := buildServer(c, memstore.New(), failingScorer{}, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reviews/submissions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBuildServer_BadCatalog(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")
	c, err := config.Load("")
	require.NoError(t, err)
	c.Catalog.Path = "does-not-exist.yaml"

	_, err = buildServer(c, memstore.New(), failingScorer{}, nil)
	assert.ErrorContains(t, err, "question catalog")
}
