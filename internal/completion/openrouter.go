// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ayseljafar/Longevity-check/internal/model"
)

const (
	openRouterName = "openrouter"

	// DefaultOpenRouterURL is the OpenRouter API base.
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

	openRouterDefaultModel = "openai/gpt-4o"

	// MaxResponseSize caps how much of an upstream body is read.
	MaxResponseSize = 10 * 1024 * 1024

	openRouterSiteURL  = "https://github.com/ayseljafar/Longevity-check"
	openRouterSiteName = "Longevity Agent"
)

func init() {
	Register(openRouterName, NewOpenRouter)
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterResponseFormat struct {
	Type string `json:"type"`
}

type openRouterRequest struct {
	Model          string                    `json:"model"`
	Messages       []openRouterMessage       `json:"messages"`
	Stream         bool                      `json:"stream"`
	Temperature    float64                   `json:"temperature,omitempty"`
	MaxTokens      int                       `json:"max_tokens,omitempty"`
	ResponseFormat *openRouterResponseFormat `json:"response_format,omitempty"`
}

type openRouterResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      openRouterMessage `json:"message"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type openRouterErrorBody struct {
	Error struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// OpenRouter talks to OpenRouter's OpenAI-compatible HTTP API directly.
type OpenRouter struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	siteURL     string
	siteName    string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewOpenRouter builds the provider.
func NewOpenRouter(opts Options) (Provider, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	mdl := opts.Model
	if mdl == "" {
		mdl = openRouterDefaultModel
	}
	return &OpenRouter{
		apiKey:      opts.APIKey,
		baseURL:     baseURL,
		model:       mdl,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		siteURL:     openRouterSiteURL,
		siteName:    openRouterSiteName,
		httpClient:  opts.httpClient(),
		logger:      opts.logger(),
	}, nil
}

// Name implements Provider.
func (c *OpenRouter) Name() string { return openRouterName }

// IsConfigured reports whether an API key is set.
func (c *OpenRouter) IsConfigured() bool { return c.apiKey != "" }

// KeyFingerprint identifies the key in logs without exposing any of it.
func (c *OpenRouter) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// Complete implements Provider.
func (c *OpenRouter) Complete(ctx context.Context, req Request) (Response, error) {
	if !c.IsConfigured() {
		return Response{}, ErrNotConfigured
	}

	body, err := c.buildRequest(req)
	if err != nil {
		return Response{}, &Error{Kind: KindInvalidRequest, Provider: openRouterName, Message: err.Error()}
	}

	start := time.Now()
	resp, err := c.doRequest(ctx, c.baseURL+"/chat/completions", body)
	if err != nil {
		return Response{}, err
	}

	c.logger.Debug("openrouter_completion",
		"model", resp.Model,
		"key", c.KeyFingerprint(),
		"duration", time.Since(start),
	)

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Response{}, &Error{Kind: KindBadResponse, Provider: openRouterName, Message: "response contained no content"}
	}
	return Response{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *OpenRouter) buildRequest(req Request) (openRouterRequest, error) {
	if len(req.Messages) == 0 {
		return openRouterRequest{}, fmt.Errorf("messages are required")
	}

	mdl := strings.TrimSpace(req.Model)
	if mdl == "" {
		mdl = c.model
	}

	out := openRouterRequest{
		Model:       mdl,
		Messages:    make([]openRouterMessage, 0, len(req.Messages)),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	for _, msg := range req.Messages {
		if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant && msg.Role != model.RoleSystem {
			return openRouterRequest{}, fmt.Errorf("unsupported role %q", msg.Role)
		}
		out.Messages = append(out.Messages, openRouterMessage{Role: msg.Role.String(), Content: msg.Content})
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if req.JSON {
		out.ResponseFormat = &openRouterResponseFormat{Type: "json_object"}
	}
	return out, nil
}

// setHeaders sets the headers OpenRouter expects.
func (c *OpenRouter) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "longevity-agent")

	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

// doRequest performs a single request to the chat completions endpoint.
func (c *OpenRouter) doRequest(ctx context.Context, requestURL string, reqBody openRouterRequest) (*openRouterResponse, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, Classify(openRouterName, err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, &Error{Kind: KindBadResponse, Provider: openRouterName, Status: resp.StatusCode, Message: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		e := handleErrorResponse(resp.StatusCode, body)
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, e
	}

	var out openRouterResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &Error{Kind: KindBadResponse, Provider: openRouterName, Status: resp.StatusCode, Message: "parse response", Err: err}
	}
	return &out, nil
}

// readResponse reads the body up to MaxResponseSize.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse turns a non-200 body into a classified error.
func handleErrorResponse(statusCode int, body []byte) *Error {
	var parsed openRouterErrorBody
	msg := ""
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	} else {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	return FromStatus(openRouterName, statusCode, msg)
}

var _ Provider = (*OpenRouter)(nil)
