// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ayseljafar/Longevity-check/internal/config"
	"github.com/ayseljafar/Longevity-check/internal/model"
)

// Provider sends a conversation to an upstream model and returns its reply.
type Provider interface {
	// Name identifies the provider in logs and health output.
	Name() string

	// Complete performs one chat completion.
	Complete(ctx context.Context, req Request) (Response, error)
}

// Request is a single chat completion request.
type Request struct {
	// Model overrides the provider's default model when set.
	Model string

	// Messages in chronological order. System messages become the upstream
	// system prompt.
	Messages []model.ChatMessage

	Temperature *float64
	MaxTokens   *int

	// JSON asks the upstream for a JSON object response.
	JSON bool

	// NoRetry makes a Retrying provider give up after the first failure.
	NoRetry bool
}

// Response is the upstream reply.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// TotalTokens returns prompt plus completion tokens.
func (r Response) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// Float returns a pointer to v, for Request.Temperature.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for Request.MaxTokens.
func Int(v int) *int { return &v }

// Func adapts a function to the Provider interface. Used as a test double.
type Func func(ctx context.Context, req Request) (Response, error)

// Name implements Provider.
func (f Func) Name() string { return "func" }

// Complete implements Provider.
func (f Func) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a provider instance.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string

	Temperature float64
	MaxTokens   int

	// Timeout bounds one upstream HTTP exchange.
	Timeout time.Duration

	// HTTPClient overrides the transport. Tests inject a round-tripper here.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// OptionsFromConfig maps the completion config section to provider options.
func OptionsFromConfig(cfg config.CompletionConfig) Options {
	return Options{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		BaseURL:     strings.TrimSpace(cfg.BaseURL),
		Model:       strings.TrimSpace(cfg.Model),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout(),
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: o.Timeout}
}

// =============================================================================
// REGISTRY
// =============================================================================

// Factory builds a provider from options.
type Factory func(opts Options) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a provider available by name. It panics on duplicates.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name = strings.ToLower(name)
	if _, dup := registry[name]; dup {
		panic("completion: provider registered twice: " + name)
	}
	registry[name] = factory
}

// Names returns the registered provider names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named provider without retries.
func New(name string, opts Options) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown completion provider %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return factory(opts)
}

// NewFromConfig builds the configured provider wrapped in the retry policy.
func NewFromConfig(cfg config.CompletionConfig, logger *slog.Logger) (Provider, error) {
	opts := OptionsFromConfig(cfg)
	opts.Logger = logger

	p, err := New(cfg.Provider, opts)
	if err != nil {
		return nil, err
	}

	policy := DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.Timeout = cfg.Timeout()
	return WithRetry(p, policy, logger), nil
}
