// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/ayseljafar/Longevity-check/internal/model"
)

const (
	googleName         = "google"
	googleDefaultModel = "gemini-2.5-flash"
)

func init() {
	Register(googleName, NewGoogle)
}

type googleModelsClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

var newGoogleClient = func(ctx context.Context, cfg *genai.ClientConfig) (*genai.Client, error) {
	return genai.NewClient(ctx, cfg)
}

// Google calls Gemini through the Gen AI SDK.
type Google struct {
	models      googleModelsClient
	model       string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// NewGoogle builds the provider. Without an API key the SDK client is not
// created and Complete reports ErrNotConfigured.
func NewGoogle(opts Options) (Provider, error) {
	mdl := opts.Model
	if mdl == "" {
		mdl = googleDefaultModel
	}

	p := &Google{
		model:       mdl,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		logger:      opts.logger(),
	}
	if opts.APIKey == "" {
		p.logger.Debug("google_provider_missing_key")
		return p, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.httpClient(),
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := newGoogleClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}
	p.models = client.Models
	return p, nil
}

// Name implements Provider.
func (p *Google) Name() string { return googleName }

// Complete implements Provider.
func (p *Google) Complete(ctx context.Context, req Request) (Response, error) {
	if p.models == nil {
		return Response{}, ErrNotConfigured
	}

	mdl, contents, cfg, err := p.buildRequest(req)
	if err != nil {
		return Response{}, &Error{Kind: KindInvalidRequest, Provider: googleName, Message: err.Error()}
	}

	resp, err := p.models.GenerateContent(ctx, mdl, contents, cfg)
	if err != nil {
		return Response{}, Classify(googleName, err)
	}

	content := extractVisibleText(resp)
	if strings.TrimSpace(content) == "" {
		return Response{}, &Error{Kind: KindBadResponse, Provider: googleName, Message: "response contained no text"}
	}

	out := Response{Content: content, Model: mdl}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func (p *Google) buildRequest(req Request) (string, []*genai.Content, *genai.GenerateContentConfig, error) {
	mdl := strings.TrimSpace(req.Model)
	if mdl == "" {
		mdl = p.model
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleSystem:
			if c := strings.TrimSpace(msg.Content); c != "" {
				system = append(system, c)
			}
		case model.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case model.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		default:
			return "", nil, nil, fmt.Errorf("unsupported role %q", msg.Role)
		}
	}
	if len(contents) == 0 {
		return "", nil, nil, fmt.Errorf("at least one user or assistant message is required")
	}

	temperature := p.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := p.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(0)),
		},
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
		}
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return mdl, contents, cfg, nil
}

// extractVisibleText joins the first candidate's text parts, skipping thoughts.
func extractVisibleText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

var _ Provider = (*Google)(nil)
