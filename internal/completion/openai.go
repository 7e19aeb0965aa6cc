// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/ayseljafar/Longevity-check/internal/model"
)

const (
	openAIName          = "openai"
	openAIDefaultAPIURL = "https://api.openai.com/v1"
	openAIDefaultModel  = "gpt-4o"
)

func init() {
	Register(openAIName, NewOpenAI)
}

// OpenAI calls the OpenAI chat completions API. Any OpenAI-compatible server,
// such as a local Ollama, works by pointing BaseURL at it.
type OpenAI struct {
	client      openai.Client
	configured  bool
	model       string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// NewOpenAI builds the provider. A missing API key is not an error here;
// Complete reports ErrNotConfigured so the relay can still start.
func NewOpenAI(opts Options) (Provider, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = openAIDefaultAPIURL
	}
	mdl := opts.Model
	if mdl == "" {
		mdl = openAIDefaultModel
	}

	client := openai.NewClient(
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(opts.httpClient()),
		// Retries belong to the Retrying wrapper.
		option.WithMaxRetries(0),
	)

	return &OpenAI{
		client:      client,
		configured:  opts.APIKey != "",
		model:       mdl,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		logger:      opts.logger(),
	}, nil
}

// Name implements Provider.
func (p *OpenAI) Name() string { return openAIName }

// Complete implements Provider.
func (p *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	if !p.configured {
		return Response{}, ErrNotConfigured
	}

	params, err := p.buildParams(req)
	if err != nil {
		return Response{}, &Error{Kind: KindInvalidRequest, Provider: openAIName, Message: err.Error()}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, Classify(openAIName, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, &Error{Kind: KindBadResponse, Provider: openAIName, Message: "response contained no choices"}
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return Response{}, &Error{Kind: KindBadResponse, Provider: openAIName, Message: "response content was empty"}
	}

	p.logger.Debug("openai_completion",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	return Response{
		Content:          content,
		Model:            resp.Model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func (p *OpenAI) buildParams(req Request) (openai.ChatCompletionNewParams, error) {
	mdl := strings.TrimSpace(req.Model)
	if mdl == "" {
		mdl = p.model
	}
	if len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("messages are required")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case model.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("unsupported role %q", msg.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(mdl),
		Messages: messages,
	}

	temperature := p.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if temperature > 0 {
		params.Temperature = openai.Float(temperature)
	}

	maxTokens := p.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	return params, nil
}

var _ Provider = (*OpenAI)(nil)
