// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assistant turns a conversation into one grounded assistant reply.
//
// Each turn detects the user's health goals, pulls matching supplements from
// the knowledge base into the system prompt, calls the completion provider
// over a bounded history window and extracts structured recommendations from
// the reply.
package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/ayseljafar/Longevity-check/internal/completion"
	"github.com/ayseljafar/Longevity-check/internal/config"
	"github.com/ayseljafar/Longevity-check/internal/knowledge"
	"github.com/ayseljafar/Longevity-check/internal/model"
)

const (
	goalHistory     = 5
	goalTemperature = 0.3
	goalMaxTokens   = 200

	defaultGoalTimeout = 5 * time.Second
)

// Options tunes the orchestration.
type Options struct {
	Temperature   float64
	MaxTokens     int
	HistoryWindow int
	GoalDetection bool

	// Timeout bounds a whole turn, goal detection included. Zero leaves
	// only the caller's deadline.
	Timeout time.Duration

	// GoalTimeout bounds the goal detection call, which is never retried.
	// It is capped at a quarter of Timeout.
	GoalTimeout time.Duration
}

// DefaultOptions matches the default completion config.
func DefaultOptions() Options {
	return Options{
		Temperature:   0.7,
		MaxTokens:     800,
		HistoryWindow: 10,
		GoalDetection: true,
		Timeout:       60 * time.Second,
		GoalTimeout:   defaultGoalTimeout,
	}
}

// OptionsFromConfig reads the tuning knobs from the completion section.
func OptionsFromConfig(cfg config.CompletionConfig) Options {
	return Options{
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
		HistoryWindow: cfg.HistoryWindow,
		GoalDetection: cfg.GoalDetection,
		Timeout:       cfg.Timeout(),
		GoalTimeout:   defaultGoalTimeout,
	}
}

// goalBudget is how long goal detection may take out of a turn.
func (o Options) goalBudget() time.Duration {
	budget := o.GoalTimeout
	if budget <= 0 {
		budget = defaultGoalTimeout
	}
	if o.Timeout > 0 && budget > o.Timeout/4 {
		budget = o.Timeout / 4
	}
	return budget
}

// Recommendation is a supplement the reply mentioned.
type Recommendation struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	ReferralLink string `json:"referral_link"`
}

// Recommendations is the structured side channel of a reply.
type Recommendations struct {
	Supplements []Recommendation `json:"supplements"`
	Goals       []string         `json:"goals,omitempty"`
	Timestamp   int64            `json:"timestamp"`
}

// Usage reports upstream token counts for one turn.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Result is the outcome of one turn.
type Result struct {
	Reply           model.ChatMessage
	Goals           []string
	Recommendations *Recommendations
	Usage           Usage
	Model           string
}

// Assistant orchestrates one reply per call. It is safe for concurrent use.
type Assistant struct {
	mu       sync.RWMutex
	provider completion.Provider
	kb       *knowledge.Base
	opts     Options
	log      logr.Logger
	now      func() time.Time
}

// New creates an assistant. A nil knowledge base uses the built-in catalog.
func New(provider completion.Provider, kb *knowledge.Base, opts Options) *Assistant {
	if kb == nil {
		kb = knowledge.Default()
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultOptions().HistoryWindow
	}
	return &Assistant{
		provider: provider,
		kb:       kb,
		opts:     opts,
		log:      logr.Discard(),
		now:      time.Now,
	}
}

// WithLogger sets the logger.
func (a *Assistant) WithLogger(log logr.Logger) *Assistant {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log = log.WithName("assistant")
	return a
}

// Provider returns the completion provider in use.
func (a *Assistant) Provider() completion.Provider { return a.provider }

// Knowledge returns the catalog in use.
func (a *Assistant) Knowledge() *knowledge.Base { return a.kb }

func (a *Assistant) logger() logr.Logger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.log
}

// Reply produces exactly one assistant message for conv. conv is not
// modified; it must end with a user message. The whole turn finishes within
// Options.Timeout; running out of time is a completion timeout error.
func (a *Assistant) Reply(ctx context.Context, conv model.Conversation) (Result, error) {
	if err := conv.Validate(); err != nil {
		return Result{}, err
	}
	log := a.logger()

	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	goals := a.detectGoals(ctx, conv)
	supps := a.supplementsFor(goals)
	if len(goals) > 0 {
		log.V(1).Info("goals_detected", "goals", goals, "supplements", len(supps))
	}

	messages := make([]model.ChatMessage, 0, a.opts.HistoryWindow+1)
	messages = append(messages, model.NewSystemMessage(buildSystemPrompt(supps)))
	messages = append(messages, conv.Window(a.opts.HistoryWindow)...)

	req := completion.Request{
		Messages:    messages,
		Temperature: completion.Float(a.opts.Temperature),
	}
	if a.opts.MaxTokens > 0 {
		req.MaxTokens = completion.Int(a.opts.MaxTokens)
	}

	resp, err := a.provider.Complete(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = completion.Classify(a.provider.Name(), err)
		}
		log.Error(err, "completion_failed", "provider", a.provider.Name())
		return Result{}, err
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return Result{}, &completion.Error{
			Kind:     completion.KindBadResponse,
			Provider: a.provider.Name(),
			Message:  "empty reply",
		}
	}

	res := Result{
		Reply: model.NewAssistantMessage(content),
		Goals: goals,
		Usage: Usage{PromptTokens: resp.PromptTokens, CompletionTokens: resp.CompletionTokens},
		Model: resp.Model,
	}
	res.Recommendations = a.extractRecommendations(content, goals)

	log.V(1).Info("reply_ready",
		"model", resp.Model,
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
		"recommendations", res.Recommendations != nil,
	)
	return res, nil
}

// detectGoals asks the model for goals and falls back to keyword matching
// when the call fails or finds none.
func (a *Assistant) detectGoals(ctx context.Context, conv model.Conversation) []string {
	recent := conv.Window(goalHistory)

	if a.opts.GoalDetection {
		gctx, cancel := context.WithTimeout(ctx, a.opts.goalBudget())
		resp, err := a.provider.Complete(gctx, completion.Request{
			Messages:    buildGoalPrompt(recent),
			Temperature: completion.Float(goalTemperature),
			MaxTokens:   completion.Int(goalMaxTokens),
			JSON:        true,
			NoRetry:     true,
		})
		cancel()
		switch {
		case err != nil:
			a.logger().V(1).Info("goal_detection_failed", "error", err.Error())
		default:
			if goals, ok := parseGoals(resp.Content); ok && len(goals) > 0 {
				return goals
			}
		}
	}

	var text strings.Builder
	for _, m := range recent {
		text.WriteString(m.Content)
		text.WriteString("\n")
	}
	return keywordGoals(text.String())
}

// supplementsFor collects catalog entries for every goal, deduplicated.
func (a *Assistant) supplementsFor(goals []string) []knowledge.Supplement {
	var out []knowledge.Supplement
	seen := make(map[string]bool)
	for _, g := range goals {
		for _, s := range a.kb.ForGoal(g) {
			if seen[s.Name] {
				continue
			}
			seen[s.Name] = true
			out = append(out, s)
		}
	}
	return out
}

// extractRecommendations lists the catalog supplements the reply names.
// A name matches in full or by its short form before any parenthesis, so
// "CoQ10" matches "CoQ10 (Ubiquinol)".
func (a *Assistant) extractRecommendations(reply string, goals []string) *Recommendations {
	lower := strings.ToLower(reply)

	var recs []Recommendation
	for _, s := range a.kb.All() {
		if !mentions(lower, s.Name) {
			continue
		}
		recs = append(recs, Recommendation{
			Name:         s.Name,
			Dosage:       s.Dosage,
			ReferralLink: s.ReferralLink,
		})
	}
	if len(recs) == 0 {
		return nil
	}
	return &Recommendations{
		Supplements: recs,
		Goals:       goals,
		Timestamp:   a.now().Unix(),
	}
}

func mentions(lowerText, name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	if strings.Contains(lowerText, name) {
		return true
	}
	if i := strings.Index(name, " ("); i > 0 {
		return strings.Contains(lowerText, name[:i])
	}
	return false
}
