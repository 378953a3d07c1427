package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SelfScore/Self-Score-sub000/internal/retry"
	"github.com/SelfScore/Self-Score-sub000/internal/types"
	"github.com/SelfScore/Self-Score-sub000/internal/voice"
)

// Config configures the HTTP provider.
type Config struct {
	// BaseURL of the provider API. Empty runs in local mode: descriptors point at
	// this service and events arrive only through the webhook.
	BaseURL string
	APIKey  string
	// WebhookURL is where the provider should deliver session events.
	WebhookURL string
	STUNURLs   []string
	Timeout    time.Duration
}

// HTTPProvider implements voice.SignalingProvider against a provider HTTP API.
type HTTPProvider struct {
	cfg    Config
	client *http.Client
	hub    *Hub
}

// NewHTTPProvider creates a provider that routes events through hub.
func NewHTTPProvider(cfg Config, hub *Hub) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		hub:    hub,
	}
}

type createChannelRequest struct {
	SessionID   uuid.UUID        `json:"session_id"`
	InterviewID uuid.UUID        `json:"interview_id"`
	Level       int              `json:"level"`
	Questions   []types.Question `json:"questions"`
	WebhookURL  string           `json:"webhook_url,omitempty"`
}

type createChannelResponse struct {
	ChannelURL string            `json:"channel_url"`
	Token      string            `json:"token"`
	ICEServers []types.ICEServer `json:"ice_servers"`
}

// CreateChannel implements voice.SignalingProvider.
func (p *HTTPProvider) CreateChannel(ctx context.Context, sessionID uuid.UUID, iv *types.Interview) (*types.SignalingDescriptor, error) {
	if p.cfg.BaseURL == "" {
		return &types.SignalingDescriptor{
			ChannelURL: fmt.Sprintf("local://voice/sessions/%s", sessionID),
			ICEServers: p.iceServers(nil),
		}, nil
	}

	var resp createChannelResponse
	err := p.post(ctx, "/channels", createChannelRequest{
		SessionID:   sessionID,
		InterviewID: iv.ID,
		Level:       iv.Level,
		Questions:   iv.Questions,
		WebhookURL:  p.webhookURL(sessionID),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ChannelURL == "" {
		return nil, fmt.Errorf("signaling provider returned no channel url")
	}
	return &types.SignalingDescriptor{
		ChannelURL: resp.ChannelURL,
		Token:      resp.Token,
		ICEServers: p.iceServers(resp.ICEServers),
	}, nil
}

// Connect implements voice.SignalingProvider. The link is attached before the
// provider is told to start so no early event is lost.
func (p *HTTPProvider) Connect(ctx context.Context, sessionID uuid.UUID) (voice.Link, error) {
	l := p.hub.Attach(sessionID)
	if p.cfg.BaseURL == "" {
		return l, nil
	}
	if err := p.post(ctx, fmt.Sprintf("/channels/%s/start", sessionID), struct{}{}, nil); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

func (p *HTTPProvider) webhookURL(sessionID uuid.UUID) string {
	if p.cfg.WebhookURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/voice/provider/sessions/%s/events", strings.TrimRight(p.cfg.WebhookURL, "/"), sessionID)
}

func (p *HTTPProvider) iceServers(fromProvider []types.ICEServer) []types.ICEServer {
	out := append([]types.ICEServer{}, fromProvider...)
	if len(p.cfg.STUNURLs) > 0 {
		out = append(out, types.ICEServer{URLs: p.cfg.STUNURLs})
	}
	return out
}

// post sends a JSON request. 4xx responses are permanent failures, everything else
// may be retried by the caller.
func (p *HTTPProvider) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to encode signaling request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to build signaling request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("signaling request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	log.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("duration", time.Since(start)).
		Msg("signaling provider call")

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("signaling provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode signaling response: %w", err)
	}
	return nil
}
