// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayseljafar/Longevity-check/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoRelay answers /chat like the real relay: one assistant reply appended.
func echoRelay(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		reply := model.NewAssistantMessage(fmt.Sprintf("reply %d", len(req.Messages)))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ChatResponse{
			Reply:    reply,
			Messages: req.Messages.Append(reply),
		})
	}))
}

func TestNew_URLValidation(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
		want    string
	}{
		{"", false, DefaultURL},
		{"http://relay:8000/", false, "http://relay:8000"},
		{"https://relay.example.com", false, "https://relay.example.com"},
		{"ftp://relay", true, ""},
		{"not a url", true, ""},
	}
	for _, tt := range tests {
		c, err := New(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			continue
		}
		if err == nil && c.BaseURL() != tt.want {
			t.Errorf("New(%q).BaseURL() = %q, want %q", tt.url, c.BaseURL(), tt.want)
		}
	}
}

func TestChat_Success(t *testing.T) {
	srv := echoRelay(t)
	defer srv.Close()

	c, err := New(srv.URL, WithLogger(quietLogger()))
	require.NoError(t, err)

	conv := model.Conversation{model.NewUserMessage("What supplements help sleep?")}
	resp, err := c.Chat(context.Background(), conv)
	require.NoError(t, err)

	assert.Equal(t, model.RoleAssistant, resp.Reply.Role)
	assert.Equal(t, "reply 1", resp.Reply.Content)
	assert.Len(t, resp.Messages, 2)
	assert.Len(t, conv, 1)
}

func TestChat_SendsTokenAndHeaders(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		reply := model.NewAssistantMessage("ok")
		_ = json.NewEncoder(w).Encode(ChatResponse{Reply: reply})
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithToken("secret"), WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), model.Conversation{model.NewUserMessage("hi")})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "/chat", got.URL.Path)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "Bearer secret", got.Header.Get("Authorization"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.NotEmpty(t, got.Header.Get("X-Request-ID"))
}

func TestChat_HTTPErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantBanner string
	}{
		{"bad gateway", 502, `{"error":{"message":"The assistant service returned an error","type":"upstream_error","code":502}}`, "Error: 502 - The assistant service returned an error"},
		{"unavailable", 503, `{"error":{"message":"The assistant service is unavailable","type":"service_unavailable","code":503}}`, "Error: 503 - The assistant service is unavailable"},
		{"bad request", 400, `{"error":{"message":"message 0: message content is empty","type":"invalid_request_error","code":400}}`, "Error: 400 - message 0: message content is empty"},
		{"plain text body", 500, `oops`, "Error: 500 - Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c, err := New(srv.URL, WithLogger(quietLogger()))
			require.NoError(t, err)

			_, err = c.Chat(context.Background(), model.Conversation{model.NewUserMessage("hi")})
			require.Error(t, err)

			var rerr *Error
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, tt.status, rerr.Status)
			assert.Equal(t, tt.wantBanner, Banner(err))
		})
	}
}

func TestChat_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), model.Conversation{model.NewUserMessage("hi")})
	require.Error(t, err)

	var terr *TransportError
	assert.True(t, errors.As(err, &terr))
	assert.Equal(t, TransportFailureText, Banner(err))
}

func TestChat_EmptyReplyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"reply":{"role":"assistant","content":""}}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), model.Conversation{model.NewUserMessage("hi")})
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, http.StatusOK, rerr.Status)
}

func TestHealthAndDisclaimer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"healthy","version":"1.0.0","provider":"static","knowledge_base":{"supplements":10,"source":"builtin"}}`)
	})
	mux.HandleFunc("GET /v1/disclaimers/{kind}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"kind": r.PathValue("kind"), "text": "See a doctor."})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(srv.URL, WithLogger(quietLogger()))
	require.NoError(t, err)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, 10, h.KnowledgeBase.Supplements)

	text, err := c.Disclaimer(context.Background(), "general")
	require.NoError(t, err)
	assert.Equal(t, "See a doctor.", text)
}

func TestBanner(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"http", &Error{Status: 503, Message: "busy"}, "Error: 503 - busy"},
		{"wrapped http", fmt.Errorf("submit: %w", &Error{Status: 502, Message: "bad"}), "Error: 502 - bad"},
		{"transport", &TransportError{Err: errors.New("dial tcp")}, TransportFailureText},
		{"canceled", context.Canceled, "Request cancelled"},
		{"empty input", &model.ValidationError{Index: 0, Err: model.ErrEmptyContent}, "Please enter a message."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Banner(tt.err); got != tt.want {
				t.Errorf("Banner() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Temporary(t *testing.T) {
	assert.True(t, (&Error{Status: 503}).Temporary())
	assert.True(t, (&Error{Status: 429}).Temporary())
	assert.False(t, (&Error{Status: 400}).Temporary())
}
