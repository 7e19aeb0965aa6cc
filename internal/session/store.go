// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayseljafar/Longevity-check/internal/model"
)

var (
	// ErrNotFound is returned for unknown or expired sessions.
	ErrNotFound = errors.New("session not found or expired")

	// ErrConflict is returned by UpdateAt when another update landed first.
	ErrConflict = errors.New("session changed by a concurrent request")
)

// =============================================================================
// SESSION
// =============================================================================

// Session is one user's conversation state.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastAccessed time.Time

	Conversation model.Conversation

	// Goals detected so far, in first-seen order.
	Goals []string

	// Recommended holds supplement names already recommended.
	Recommended []string

	// Latest is what the most recent reply recommended.
	Latest []Recommendation

	// Version counts updates. UpdateAt uses it to detect overlapping turns.
	Version uint64
}

// Recommendation is one supplement suggested by a reply.
type Recommendation struct {
	Name         string
	Dosage       string
	ReferralLink string
}

func (s *Session) clone() Session {
	out := *s
	out.Conversation = s.Conversation.Clone()
	out.Goals = append([]string(nil), s.Goals...)
	out.Recommended = append([]string(nil), s.Recommended...)
	out.Latest = append([]Recommendation(nil), s.Latest...)
	return out
}

// Record stores the outcome of a successful turn: the full history and what
// the reply recommended.
func (s *Session) Record(conv model.Conversation, goals []string, recs []Recommendation) {
	s.Conversation = conv.Clone()
	s.AddGoals(goals...)
	for _, r := range recs {
		s.AddRecommended(r.Name)
	}
	s.Latest = append([]Recommendation(nil), recs...)
}

// Reset clears the conversation and everything derived from it.
func (s *Session) Reset() {
	s.Conversation = nil
	s.Goals = nil
	s.Recommended = nil
	s.Latest = nil
}

// AddGoals appends goals not already present.
func (s *Session) AddGoals(goals ...string) {
	s.Goals = appendUnique(s.Goals, goals...)
}

// AddRecommended appends supplement names not already present.
func (s *Session) AddRecommended(names ...string) {
	s.Recommended = appendUnique(s.Recommended, names...)
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, existing := range dst {
			if existing == item {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, item)
		}
	}
	return dst
}

// =============================================================================
// STORE
// =============================================================================

// Config holds store settings.
type Config struct {
	// Timeout is the inactivity period after which a session expires.
	Timeout time.Duration

	// SweepInterval is how often Run removes expired sessions.
	SweepInterval time.Duration
}

// DefaultConfig returns a one hour timeout swept every minute.
func DefaultConfig() Config {
	return Config{
		Timeout:       time.Hour,
		SweepInterval: time.Minute,
	}
}

// Store is a concurrency-safe in-memory session table.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger

	now func() time.Time
}

// NewStore creates an empty store. Zero config fields take defaults.
func NewStore(cfg Config) *Store {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	return &Store{
		sessions: make(map[string]*Session),
		timeout:  cfg.Timeout,
		interval: cfg.SweepInterval,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// WithLogger sets the logger used by the janitor.
func (st *Store) WithLogger(logger *slog.Logger) *Store {
	st.mu.Lock()
	defer st.mu.Unlock()
	if logger != nil {
		st.logger = logger
	}
	return st
}

// Timeout returns the inactivity timeout.
func (st *Store) Timeout() time.Duration { return st.timeout }

// Create starts a new empty session.
func (st *Store) Create() Session {
	return st.CreateWith(nil)
}

// CreateWith starts a new session initialised by fn under the store lock.
// A nil fn leaves it empty.
func (st *Store) CreateWith(fn func(*Session)) Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	s := &Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastAccessed: now,
	}
	if fn != nil {
		fn(s)
		s.Version = 1
	}
	st.sessions[s.ID] = s
	return s.clone()
}

// Get returns a copy of the session and refreshes its last access time.
func (st *Store) Get(id string) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.live(id)
	if !ok {
		return Session{}, false
	}
	s.LastAccessed = st.now()
	return s.clone(), true
}

// GetOrCreate returns the session for id, or a new one if id is unknown,
// expired or empty.
func (st *Store) GetOrCreate(id string) Session {
	if id != "" {
		if s, ok := st.Get(id); ok {
			return s
		}
	}
	return st.Create()
}

// Update applies fn to the stored session under the store lock.
func (st *Store) Update(id string, fn func(*Session)) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.live(id)
	if !ok {
		return ErrNotFound
	}
	st.apply(s, fn)
	return nil
}

// UpdateAt applies fn only if the session is still at version, the Version
// of the copy the caller read. Otherwise it returns ErrConflict and leaves
// the session alone.
func (st *Store) UpdateAt(id string, version uint64, fn func(*Session)) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.live(id)
	if !ok {
		return ErrNotFound
	}
	if s.Version != version {
		return ErrConflict
	}
	st.apply(s, fn)
	return nil
}

// apply runs fn and bumps the version. Caller holds mu.
func (st *Store) apply(s *Session, fn func(*Session)) {
	fn(s)
	s.Version++
	s.LastAccessed = st.now()
}

// Delete removes a session. Unknown IDs are ignored.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len returns the number of stored sessions, expired ones included until
// they are swept.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// live returns the session if present and not expired, deleting it if it
// has expired. Caller holds mu.
func (st *Store) live(id string) (*Session, bool) {
	s, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	if st.now().Sub(s.LastAccessed) >= st.timeout {
		delete(st.sessions, id)
		return nil, false
	}
	return s, true
}

// Sweep removes all expired sessions and returns how many were removed.
func (st *Store) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	removed := 0
	for id, s := range st.sessions {
		if now.Sub(s.LastAccessed) >= st.timeout {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions every SweepInterval until ctx is done.
func (st *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(st.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(); n > 0 {
				st.mu.Lock()
				logger := st.logger
				remaining := len(st.sessions)
				st.mu.Unlock()
				logger.Info("sessions_expired", "removed", n, "remaining", remaining)
			}
		}
	}
}
