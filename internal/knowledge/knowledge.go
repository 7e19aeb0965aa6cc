// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package knowledge holds the supplement catalog and medical disclaimers the
// assistant draws on.
//
// The catalog starts from a built-in list and can be replaced by a JSON, YAML
// or SQLite source. File sources can be watched and are reloaded in place.
package knowledge

import (
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Supplement is one catalog entry.
type Supplement struct {
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description" yaml:"description"`
	Dosage        string   `json:"dosage" yaml:"dosage"`
	Cautions      string   `json:"cautions" yaml:"cautions"`
	EvidenceLevel string   `json:"evidence_level" yaml:"evidence_level"`
	RelevantGoals []string `json:"relevant_goals" yaml:"relevant_goals"`
	ReferralLink  string   `json:"referral_link" yaml:"referral_link"`
}

// catalog is the on-disk shape for JSON and YAML sources.
type catalog struct {
	Supplements []Supplement `json:"supplements" yaml:"supplements"`
}

// Base is a concurrency-safe supplement catalog.
type Base struct {
	mu          sync.RWMutex
	supplements []Supplement
	path        string
	logger      *slog.Logger
}

// Default returns a catalog with the built-in supplements.
func Default() *Base {
	supps, err := decodeYAML(defaultsYAML)
	if err != nil {
		panic("knowledge: built-in catalog is invalid: " + err.Error())
	}
	return &Base{supplements: supps, logger: slog.Default()}
}

// Load returns the catalog at path, or the built-in catalog when path is
// empty. The extension selects the format.
func Load(path string, logger *slog.Logger) (*Base, error) {
	b := Default()
	if logger != nil {
		b.logger = logger
	}
	if path == "" {
		return b, nil
	}

	supps, err := loadSource(path)
	if err != nil {
		return nil, err
	}
	b.supplements = supps
	b.path = path
	b.logger.Info("knowledge_loaded", "path", path, "supplements", len(supps))
	return b, nil
}

// Path returns the file source, or "" for the built-in catalog.
func (b *Base) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

// Len returns the number of supplements.
func (b *Base) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.supplements)
}

// All returns a copy of every supplement.
func (b *Base) All() []Supplement {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Supplement, len(b.supplements))
	copy(out, b.supplements)
	return out
}

// ForGoal returns supplements relevant to goal. A supplement matches when goal
// is a case-insensitive substring of one of its relevant goals, or failing
// that, of its description.
func (b *Base) ForGoal(goal string) []Supplement {
	goal = strings.ToLower(strings.TrimSpace(goal))
	if goal == "" {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Supplement
	for _, s := range b.supplements {
		if matchesGoal(s, goal) {
			out = append(out, s)
		}
	}
	return out
}

func matchesGoal(s Supplement, goal string) bool {
	for _, g := range s.RelevantGoals {
		if strings.Contains(strings.ToLower(g), goal) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(s.Description), goal)
}

// Find looks a supplement up by name, case-insensitively. An exact match wins
// over a prefix match ("omega-3" finds "Omega-3 Fatty Acids").
func (b *Base) Find(name string) (Supplement, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Supplement{}, false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.supplements {
		if strings.ToLower(s.Name) == name {
			return s, true
		}
	}
	for _, s := range b.supplements {
		if strings.HasPrefix(strings.ToLower(s.Name), name) {
			return s, true
		}
	}
	return Supplement{}, false
}

// replace swaps the catalog after a successful reload.
func (b *Base) replace(supps []Supplement) {
	b.mu.Lock()
	b.supplements = supps
	b.mu.Unlock()
}

// Reload re-reads the file source. On error the current catalog is kept.
func (b *Base) Reload() error {
	path := b.Path()
	if path == "" {
		return nil
	}
	supps, err := loadSource(path)
	if err != nil {
		b.logger.Warn("knowledge_reload_failed", "path", path, "error", err)
		return err
	}
	b.replace(supps)
	b.logger.Info("knowledge_reloaded", "path", path, "supplements", len(supps))
	return nil
}

func validate(supps []Supplement) error {
	if len(supps) == 0 {
		return fmt.Errorf("catalog has no supplements")
	}
	seen := make(map[string]bool, len(supps))
	for i, s := range supps {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("supplement %d has no name", i)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return fmt.Errorf("duplicate supplement %q", name)
		}
		seen[key] = true
	}
	return nil
}
