// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package web serves the browser chat page. It keeps each visitor's
// conversation in memory, keyed by a session cookie, and forwards every turn
// to the relay.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ayseljafar/Longevity-check/internal/config"
	"github.com/ayseljafar/Longevity-check/internal/knowledge"
	"github.com/ayseljafar/Longevity-check/internal/model"
	"github.com/ayseljafar/Longevity-check/internal/relay"
	"github.com/ayseljafar/Longevity-check/internal/session"
)

// CookieName holds the browser's session ID.
const CookieName = "longevity_session"

// WelcomeMessage opens every conversation. It is display only and never
// sent to the relay.
const WelcomeMessage = "Hello! I'm your Longevity Health Agent. I can help you with:\n\n" +
	"- Understanding your health goals and concerns\n" +
	"- Recommending evidence-based supplements and protocols\n" +
	"- Providing lifestyle and exercise guidance tailored to longevity\n" +
	"- Suggesting ways to optimize your health\n\n" +
	"What health goals would you like to discuss today?"

// ConflictBanner is shown when another tab's message on the same session
// was answered first.
const ConflictBanner = "Another message in this conversation was answered first. Please review the history and try again."

const maxFormSize = 256 * 1024

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// DisclaimerSource fetches disclaimer text. *relay.Client implements it.
type DisclaimerSource interface {
	Disclaimer(ctx context.Context, kind string) (string, error)
}

// Server is the web frontend.
type Server struct {
	cfg      config.WebConfig
	client   Chatter
	sessions *session.Store
	render   *Renderer
	tmpl     *template.Template
	logger   *slog.Logger
	now      func() time.Time

	disclaimerSrc  DisclaimerSource
	disclaimerOnce sync.Once
	disclaimer     string

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates the frontend. client is usually a *relay.Client.
func NewServer(cfg config.WebConfig, client Chatter) *Server {
	s := &Server{
		cfg:      cfg,
		client:   client,
		sessions: session.NewStore(session.Config{Timeout: cfg.SessionTimeout()}),
		render:   NewRenderer(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	if src, ok := client.(DisclaimerSource); ok {
		s.disclaimerSrc = src
	}
	s.tmpl = template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))
	return s
}

// WithLogger sets the logger.
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	if logger != nil {
		s.logger = logger
		s.sessions.WithLogger(logger)
	}
	return s
}

// Sessions returns the session store, for running its janitor.
func (s *Server) Sessions() *session.Store { return s.sessions }

// Handler returns the frontend routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /chat", s.handleSubmit)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	static, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	return securityHeaders(mux)
}

// ============================================================================
// HANDLERS
// ============================================================================

type messageView struct {
	Role string
	HTML template.HTML
}

type pageData struct {
	Welcome         template.HTML
	Disclaimer      string
	Messages        []messageView
	Recommendations []session.Recommendation
	Banner          string
	Draft           string
	Turn            int
	SessionShort    string
	Updated         string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	chat := s.chatFor(w, r)
	s.renderPage(w, r, http.StatusOK, chat, chat.Conversation(), "", "")
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	chat := s.chatFor(w, r)
	text := r.PostFormValue("message")

	// A resubmitted form (reload after a reply) carries a stale turn count.
	if turn, err := strconv.Atoi(r.PostFormValue("turn")); err == nil && turn != len(chat.Conversation()) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	conv, err := chat.Submit(r.Context(), text)
	if err != nil {
		status, banner := http.StatusBadGateway, relay.Banner(err)
		var verr *model.ValidationError
		switch {
		case errors.As(err, &verr):
			status = http.StatusBadRequest
		case errors.Is(err, session.ErrConflict):
			status, banner = http.StatusConflict, ConflictBanner
		}
		s.renderPage(w, r, status, chat, conv, banner, text)
		return
	}
	s.renderPage(w, r, http.StatusOK, chat, conv, "", "")
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	chat := s.chatFor(w, r)
	if err := chat.Reset(); err != nil {
		s.logger.Warn("chat_reset_failed", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// chatFor finds or starts the visitor's session and refreshes the cookie.
func (s *Server) chatFor(w http.ResponseWriter, r *http.Request) *Chat {
	id := ""
	if c, err := r.Cookie(CookieName); err == nil {
		id = c.Value
	}
	sess := s.sessions.GetOrCreate(id)
	if sess.ID != id {
		s.logger.Debug("web_session_created", "session", shortID(sess.ID))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(s.sessions.Timeout().Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return NewChat(sess.ID, s.sessions, s.client, s.logger)
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, chat *Chat, conv model.Conversation, banner, draft string) {
	data := pageData{
		Welcome:         s.render.Markdown(WelcomeMessage),
		Disclaimer:      s.disclaimerText(r.Context()),
		Recommendations: chat.Recommendations(),
		Banner:          banner,
		Draft:           draft,
		Turn:            len(conv),
		SessionShort:    shortID(chat.ID()),
		Updated:         s.now().Format("2006-01-02 15:04:05"),
	}
	for _, msg := range conv {
		view := messageView{Role: string(msg.Role)}
		if msg.Role == model.RoleAssistant {
			view.HTML = s.render.Markdown(msg.Content)
		} else {
			view.HTML = template.HTML("<p>" + template.HTMLEscapeString(msg.Content) + "</p>")
		}
		data.Messages = append(data.Messages, view)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.Error("template_render_failed", "error", err)
	}
}

// disclaimerText asks the relay once and falls back to the built-in text.
func (s *Server) disclaimerText(ctx context.Context) string {
	s.disclaimerOnce.Do(func() {
		s.disclaimer = knowledge.DisclaimerGeneral
		if s.disclaimerSrc == nil {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		text, err := s.disclaimerSrc.Disclaimer(ctx, "general")
		if err != nil {
			s.logger.Debug("disclaimer_fetch_failed", "error", err)
			return
		}
		if text != "" {
			s.disclaimer = text
		}
	})
	return s.disclaimer
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'self'; img-src 'self' https:; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// LIFECYCLE
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
	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.cfg.RelayTimeout() + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("web_start", "addr", ln.Addr().String(), "relay", s.cfg.RelayURL)
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("web_shutdown", "sessions", s.sessions.Len())
	return srv.Shutdown(ctx)
}
