// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package relay is the frontend's HTTP client for the relay backend.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayseljafar/Longevity-check/internal/config"
	"github.com/ayseljafar/Longevity-check/internal/model"
)

const (
	// DefaultURL is where a locally started relay listens.
	DefaultURL = "http://127.0.0.1:8000"

	// DefaultTimeout bounds one relay round trip. It is longer than the
	// relay's turn timeout so the relay reports timeouts itself.
	DefaultTimeout = 90 * time.Second

	maxResponseSize = 4 * 1024 * 1024
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// Recommendation is a supplement the assistant mentioned.
type Recommendation struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	ReferralLink string `json:"referral_link"`
}

// Recommendations accompany a reply when supplements were suggested.
type Recommendations struct {
	Supplements []Recommendation `json:"supplements"`
	Goals       []string         `json:"goals,omitempty"`
	Timestamp   int64            `json:"timestamp"`
}

// ChatResponse is the relay's answer to one turn.
type ChatResponse struct {
	Reply           model.ChatMessage  `json:"reply"`
	Messages        model.Conversation `json:"messages"`
	Recommendations *Recommendations   `json:"recommendations,omitempty"`
	SessionID       string             `json:"session_id,omitempty"`
}

type chatRequest struct {
	Messages model.Conversation `json:"messages"`
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Health is the relay's /health body.
type Health struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Provider      string `json:"provider"`
	KnowledgeBase struct {
		Supplements int    `json:"supplements"`
		Source      string `json:"source"`
	} `json:"knowledge_base"`
	Sessions int `json:"sessions"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to one relay.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the HTTP client, e.g. for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the relay at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid relay URL %q", baseURL)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromConfig creates a client from the web section of the config.
func NewFromConfig(cfg config.WebConfig, logger *slog.Logger) (*Client, error) {
	return New(cfg.RelayURL,
		WithToken(cfg.RelayToken),
		WithTimeout(cfg.RelayTimeout()),
		WithLogger(logger),
	)
}

// BaseURL returns the relay address.
func (c *Client) BaseURL() string { return c.baseURL }

// Chat sends the whole conversation and returns the relay's reply. conv is
// not modified.
func (c *Client) Chat(ctx context.Context, conv model.Conversation) (*ChatResponse, error) {
	body, err := json.Marshal(chatRequest{Messages: conv})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	requestID := uuid.NewString()
	start := time.Now()

	resp, err := c.do(ctx, http.MethodPost, "/chat", bytes.NewReader(body), requestID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rerr := readError(resp)
		c.logger.Warn("relay_chat_failed",
			"request_id", requestID,
			"status", rerr.Status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, rerr
	}

	var out ChatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&out); err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: "invalid response from backend", Err: err}
	}
	if out.Reply.Role != model.RoleAssistant || strings.TrimSpace(out.Reply.Content) == "" {
		return nil, &Error{Status: resp.StatusCode, Message: "backend returned no reply"}
	}

	c.logger.Debug("relay_chat_complete",
		"request_id", requestID,
		"messages", len(conv),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &out, nil
}

// Health fetches the relay's /health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil, uuid.NewString())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}
	var h Health
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&h); err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: "invalid health response", Err: err}
	}
	return &h, nil
}

// Disclaimer fetches disclaimer text of the given kind.
func (c *Client) Disclaimer(ctx context.Context, kind string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/disclaimers/"+url.PathEscape(kind), nil, uuid.NewString())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readError(resp)
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		return "", &Error{Status: resp.StatusCode, Message: "invalid disclaimer response", Err: err}
	}
	return body.Text, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, requestID string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		c.logger.Warn("relay_unreachable", "request_id", requestID, "url", c.baseURL, "error", err)
		return nil, &TransportError{Err: err}
	}
	return resp, nil
}

func readError(resp *http.Response) *Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var eb errorBody
	msg := ""
	if json.Unmarshal(raw, &eb) == nil {
		msg = eb.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{Status: resp.StatusCode, Type: eb.Error.Type, Message: msg}
}
