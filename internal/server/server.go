// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayseljafar/Longevity-check/internal/assistant"
	"github.com/ayseljafar/Longevity-check/internal/completion"
	"github.com/ayseljafar/Longevity-check/internal/config"
	"github.com/ayseljafar/Longevity-check/internal/knowledge"
	"github.com/ayseljafar/Longevity-check/internal/model"
	"github.com/ayseljafar/Longevity-check/internal/session"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxRequestBodySize is the largest accepted request body (1 MiB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// defaultRetryAfter is sent with 503s when the upstream gave no hint.
	defaultRetryAfter = 5 * time.Second
)

// Error types in the JSON error body.
const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeAuth           = "authentication_error"
	errTypeRateLimit      = "rate_limit_error"
	errTypeUnavailable    = "service_unavailable"
	errTypeUpstream       = "upstream_error"
	errTypeTimeout        = "upstream_timeout"
	errTypeNotFound       = "not_found"
	errTypeConflict       = "conflict"
	errTypeInternal       = "internal_error"
)

// ============================================================================
// SERVER STATS
// ============================================================================

// ServerStats counts relay traffic.
type ServerStats struct {
	TotalRequests    atomic.Int64
	Succeeded        atomic.Int64
	Rejected         atomic.Int64
	UpstreamFailures atomic.Int64
	PromptTokens     atomic.Int64
	CompletionTokens atomic.Int64
	StartTime        time.Time
}

// NewServerStats starts the uptime clock.
func NewServerStats() *ServerStats {
	return &ServerStats{StartTime: time.Now()}
}

// Uptime returns time since the stats were created.
func (s *ServerStats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the chat relay.
type Server struct {
	cfg     config.RelayConfig
	version string

	router *http.ServeMux
	server *http.Server

	assistant *assistant.Assistant
	sessions  *session.Store
	stats     *ServerStats
	auth      *AuthConfig
	cors      *CORSConfig
	limiter   *RateLimiter
	logger    *slog.Logger

	mu sync.RWMutex
}

// New creates a relay serving asst. Auth, CORS and rate limits come from cfg.
func New(asst *assistant.Assistant, cfg config.RelayConfig) *Server {
	s := &Server{
		cfg:       cfg,
		version:   "dev",
		router:    http.NewServeMux(),
		assistant: asst,
		sessions:  session.NewStore(session.Config{Timeout: cfg.SessionTimeout()}),
		stats:     NewServerStats(),
		auth:      NewAuthConfig(cfg.AuthToken, cfg.AllowedIPs),
		cors:      NewCORSConfig(cfg.CORSOrigins),
		logger:    slog.Default(),
	}
	if cfg.RateLimitPerMinute > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	}
	s.setupRoutes()
	return s
}

// WithLogger sets the logger.
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
		s.sessions.WithLogger(logger)
	}
	return s
}

// WithVersion sets the version reported by /health.
func (s *Server) WithVersion(v string) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
	return s
}

// WithAuth replaces the authentication configuration.
func (s *Server) WithAuth(config *AuthConfig) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = config
	return s
}

// WithRateLimiter replaces the rate limiter; nil disables limiting.
func (s *Server) WithRateLimiter(rl *RateLimiter) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiter = rl
	return s
}

// WithSessions replaces the session store.
func (s *Server) WithSessions(st *session.Store) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = st
	return s
}

// Sessions returns the session store, for running its janitor.
func (s *Server) Sessions() *session.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions
}

// Stats returns the live counters.
func (s *Server) Stats() *ServerStats { return s.stats }

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /chat", s.handleChat)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /stats", s.handleStats)
	s.router.HandleFunc("GET /v1/supplements", s.handleSupplements)
	s.router.HandleFunc("GET /v1/disclaimers/{kind}", s.handleDisclaimer)
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlerLocked()
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	readTimeout := time.Duration(s.cfg.ReadTimeoutSecs) * time.Second
	writeTimeout := time.Duration(s.cfg.WriteTimeoutSecs) * time.Second

	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.handlerLocked(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.server
	logger := s.logger
	s.mu.Unlock()

	logger.Info("server_start",
		"addr", ln.Addr().String(),
		"version", s.version,
		"provider", s.assistant.Provider().Name(),
		"auth", s.auth != nil && s.auth.Enabled,
	)
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// handlerLocked is Handler for callers already holding mu.
func (s *Server) handlerLocked() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger),
		RateLimitMiddleware(s.limiter, s.logger),
		CORSMiddleware(s.cors),
		AuthMiddleware(s.auth, s.logger),
	)(s.router)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	logger := s.logger
	s.mu.RUnlock()

	if srv == nil {
		return nil
	}
	logger.Info("server_shutdown",
		"requests", s.stats.TotalRequests.Load(),
		"sessions", s.Sessions().Len(),
	)
	return srv.Shutdown(ctx)
}

// ============================================================================
// CHAT HANDLER
// ============================================================================

// ChatRequest is the body of POST /chat. Exactly one of Messages or Message
// is set.
type ChatRequest struct {
	Messages model.Conversation `json:"messages,omitempty"`
	Metadata map[string]any     `json:"metadata,omitempty"`

	SessionID string  `json:"session_id,omitempty"`
	Message   *string `json:"message,omitempty"`
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	Reply           model.ChatMessage          `json:"reply"`
	Messages        model.Conversation         `json:"messages"`
	Recommendations *assistant.Recommendations `json:"recommendations,omitempty"`
	SessionID       string                     `json:"session_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.stats.TotalRequests.Add(1)
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.stats.Rejected.Add(1)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, errTypeInvalidRequest,
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", MaxRequestBodySize))
			return
		}
		s.log().Debug("chat_bad_json", "error", err)
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest, "Invalid request format")
		return
	}

	if req.Message != nil {
		if len(req.Messages) > 0 {
			s.stats.Rejected.Add(1)
			writeError(w, http.StatusBadRequest, errTypeInvalidRequest, "Send either messages or message, not both")
			return
		}
		s.handleSessionChat(w, r, req)
		return
	}

	resp, err := s.reply(r.Context(), req.Messages)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.stats.Succeeded.Add(1)
	writeJSON(w, http.StatusOK, resp)
}

// handleSessionChat serves the {session_id?, message} form. The stored
// history only changes when the reply succeeds, and a session is only
// created once there is a reply to store. A turn that overlaps another turn
// on the same session gets 409 and changes nothing.
func (s *Server) handleSessionChat(w http.ResponseWriter, r *http.Request, req ChatRequest) {
	msg := model.NewUserMessage(*req.Message)
	if err := msg.Validate(); err != nil {
		s.writeFailure(w, &model.ValidationError{Index: 0, Err: err})
		return
	}

	store := s.Sessions()
	sess, known := store.Get(req.SessionID)
	conv := sess.Conversation.Append(msg)
	if len(conv) > model.MaxMessages {
		conv = conv[len(conv)-model.MaxMessages:]
	}

	resp, err := s.reply(r.Context(), conv)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	record := recordTurn(resp)
	id := ""
	if known {
		err := store.UpdateAt(sess.ID, sess.Version, record)
		switch {
		case err == nil:
			id = sess.ID
		case errors.Is(err, session.ErrConflict):
			s.stats.Rejected.Add(1)
			s.log().Info("session_turn_conflict", "session_id", sess.ID)
			writeError(w, http.StatusConflict, errTypeConflict,
				"Another message for this session was answered first. Reload the conversation and try again.")
			return
		default:
			// Expired mid-request; the turn moves to a fresh session.
			s.log().Warn("session_save_failed", "session_id", sess.ID, "error", err)
		}
	}
	if id == "" {
		id = store.CreateWith(record).ID
	}

	resp.SessionID = id
	s.stats.Succeeded.Add(1)
	writeJSON(w, http.StatusOK, resp)
}

// recordTurn stores a successful reply and what it recommended.
func recordTurn(resp ChatResponse) func(*session.Session) {
	var (
		goals []string
		recs  []session.Recommendation
	)
	if r := resp.Recommendations; r != nil {
		goals = r.Goals
		for _, sup := range r.Supplements {
			recs = append(recs, session.Recommendation{Name: sup.Name, Dosage: sup.Dosage, ReferralLink: sup.ReferralLink})
		}
	}
	return func(st *session.Session) {
		st.Record(resp.Messages, goals, recs)
	}
}

// reply validates conv and asks the assistant for one new message.
func (s *Server) reply(ctx context.Context, conv model.Conversation) (ChatResponse, error) {
	if err := conv.Validate(); err != nil {
		return ChatResponse{}, err
	}

	start := time.Now()
	res, err := s.assistant.Reply(ctx, conv)
	if err != nil {
		return ChatResponse{}, err
	}

	s.stats.PromptTokens.Add(int64(res.Usage.PromptTokens))
	s.stats.CompletionTokens.Add(int64(res.Usage.CompletionTokens))
	s.log().Info("chat_reply",
		"messages", len(conv),
		"goals", res.Goals,
		"model", res.Model,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return ChatResponse{
		Reply:           res.Reply,
		Messages:        conv.Append(res.Reply),
		Recommendations: res.Recommendations,
	}, nil
}

// writeFailure maps an error to its HTTP status and writes it.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status, errType, msg, retryAfter := statusForError(err)
	switch {
	case status < 500:
		s.stats.Rejected.Add(1)
		s.log().Debug("chat_rejected", "status", status, "error", err)
	default:
		s.stats.UpstreamFailures.Add(1)
		s.log().Warn("chat_upstream_failed", "status", status, "kind", string(completion.KindOf(err)), "error", err)
	}
	if retryAfter > 0 {
		w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
	}
	writeError(w, status, errType, msg)
}

// statusForError decides the response for a failed chat turn. Messages are
// safe to show to clients.
func statusForError(err error) (status int, errType, message string, retryAfter time.Duration) {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, errTypeInvalidRequest, ve.Error(), 0
	}

	if errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable, errTypeUnavailable, "Request cancelled", 0
	}

	var ce *completion.Error
	if !errors.As(err, &ce) {
		return http.StatusInternalServerError, errTypeInternal, "Internal server error", 0
	}

	hint := ce.RetryAfter
	if hint <= 0 {
		hint = defaultRetryAfter
	}

	switch ce.Kind {
	case completion.KindNotConfigured:
		return http.StatusServiceUnavailable, errTypeUnavailable, "The assistant is not configured", 0
	case completion.KindRateLimited:
		return http.StatusServiceUnavailable, errTypeUnavailable, "The assistant is busy. Please try again shortly.", hint
	case completion.KindUnavailable:
		if ce.Status >= 500 {
			return http.StatusBadGateway, errTypeUpstream, "The assistant service returned an error", 0
		}
		return http.StatusServiceUnavailable, errTypeUnavailable, "The assistant service is unavailable", hint
	case completion.KindTimeout:
		return http.StatusGatewayTimeout, errTypeTimeout, "The assistant took too long to respond", 0
	default:
		return http.StatusBadGateway, errTypeUpstream, "The assistant service returned an error", 0
	}
}

// ============================================================================
// INFO HANDLERS
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string          `json:"status"`
	Version       string          `json:"version"`
	Provider      string          `json:"provider"`
	KnowledgeBase KnowledgeHealth `json:"knowledge_base"`
	Sessions      int             `json:"sessions"`
}

// KnowledgeHealth summarises the catalog.
type KnowledgeHealth struct {
	Supplements int    `json:"supplements"`
	Source      string `json:"source"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	kb := s.assistant.Knowledge()
	source := kb.Path()
	if source == "" {
		source = "builtin"
	}

	s.mu.RLock()
	version := s.version
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Version:  version,
		Provider: s.assistant.Provider().Name(),
		KnowledgeBase: KnowledgeHealth{
			Supplements: kb.Len(),
			Source:      source,
		},
		Sessions: s.Sessions().Len(),
	})
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	TotalRequests    int64 `json:"total_requests"`
	Succeeded        int64 `json:"succeeded"`
	Rejected         int64 `json:"rejected"`
	UpstreamFailures int64 `json:"upstream_failures"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	ActiveSessions   int   `json:"active_sessions"`
	UptimeSeconds    int64 `json:"uptime_seconds"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		TotalRequests:    s.stats.TotalRequests.Load(),
		Succeeded:        s.stats.Succeeded.Load(),
		Rejected:         s.stats.Rejected.Load(),
		UpstreamFailures: s.stats.UpstreamFailures.Load(),
		PromptTokens:     s.stats.PromptTokens.Load(),
		CompletionTokens: s.stats.CompletionTokens.Load(),
		ActiveSessions:   s.Sessions().Len(),
		UptimeSeconds:    int64(s.stats.Uptime().Seconds()),
	})
}

// SupplementsResponse is the body of GET /v1/supplements.
type SupplementsResponse struct {
	Goal        string                 `json:"goal,omitempty"`
	Count       int                    `json:"count"`
	Supplements []knowledge.Supplement `json:"supplements"`
}

func (s *Server) handleSupplements(w http.ResponseWriter, r *http.Request) {
	kb := s.assistant.Knowledge()
	goal := strings.TrimSpace(r.URL.Query().Get("goal"))

	var supps []knowledge.Supplement
	if goal != "" {
		supps = kb.ForGoal(goal)
	} else {
		supps = kb.All()
	}
	if supps == nil {
		supps = []knowledge.Supplement{}
	}
	writeJSON(w, http.StatusOK, SupplementsResponse{Goal: goal, Count: len(supps), Supplements: supps})
}

func (s *Server) handleDisclaimer(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	if !knowledge.IsDisclaimerKind(kind) {
		writeError(w, http.StatusNotFound, errTypeNotFound,
			fmt.Sprintf("Unknown disclaimer %q (want one of %s)", kind, strings.Join(knowledge.DisclaimerKinds(), ", ")))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"kind": kind,
		"text": knowledge.Disclaimer(kind),
	})
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) log() *slog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{"message","type","code"}}.
func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    errType,
			"code":    status,
		},
	})
}
