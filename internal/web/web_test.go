// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayseljafar/Longevity-check/internal/config"
	"github.com/ayseljafar/Longevity-check/internal/model"
	"github.com/ayseljafar/Longevity-check/internal/relay"
	"github.com/ayseljafar/Longevity-check/internal/session"
)

// fakeRelay answers like the relay and records each conversation it saw.
type fakeRelay struct {
	mu    sync.Mutex
	err   error
	reply func(conv model.Conversation) string
	recs  *relay.Recommendations
	seen  []model.Conversation

	// gate, when set, runs before each reply outside the lock.
	gate func()
}

func (f *fakeRelay) Chat(ctx context.Context, conv model.Conversation) (*relay.ChatResponse, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		gate()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, conv.Clone())
	if f.err != nil {
		return nil, f.err
	}
	content := fmt.Sprintf("reply to %d messages", len(conv))
	if f.reply != nil {
		content = f.reply(conv)
	}
	reply := model.NewAssistantMessage(content)
	return &relay.ChatResponse{Reply: reply, Messages: conv.Append(reply), Recommendations: f.recs}, nil
}

func (f *fakeRelay) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestChat(t *testing.T, fr *fakeRelay) *Chat {
	t.Helper()
	store := session.NewStore(session.DefaultConfig())
	sess := store.Create()
	return NewChat(sess.ID, store, fr, quietLogger())
}

// =============================================================================
// SUBMIT TESTS
// =============================================================================

func TestSubmit_AppendsOneReplyPerTurn(t *testing.T) {
	fr := &fakeRelay{}
	chat := newTestChat(t, fr)

	var prev model.Conversation
	for turn := 1; turn <= 3; turn++ {
		before := prev.Clone()
		conv, err := chat.Submit(context.Background(), fmt.Sprintf("question %d", turn))
		require.NoError(t, err)

		require.Len(t, conv, len(before)+2, "turn %d", turn)
		assert.True(t, slices.Equal(conv[:len(before)], before), "turn %d: history rewritten", turn)
		assert.True(t, slices.Equal(prev, before), "turn %d: caller's copy modified", turn)
		assert.Equal(t, model.RoleAssistant, conv[len(conv)-1].Role)
		prev = conv
	}
	assert.True(t, slices.Equal(chat.Conversation(), prev))
}

func TestSubmit_SendsWholeConversation(t *testing.T) {
	fr := &fakeRelay{}
	chat := newTestChat(t, fr)

	_, err := chat.Submit(context.Background(), "first")
	require.NoError(t, err)
	_, err = chat.Submit(context.Background(), "second")
	require.NoError(t, err)

	require.Equal(t, 2, fr.calls())
	last := fr.seen[1]
	require.Len(t, last, 3)
	assert.Equal(t, "first", last[0].Content)
	assert.Equal(t, "second", last[2].Content)
}

func TestSubmit_TwoTurnsAlternate(t *testing.T) {
	chat := newTestChat(t, &fakeRelay{})

	_, err := chat.Submit(context.Background(), "What supplements help sleep?")
	require.NoError(t, err)
	conv, err := chat.Submit(context.Background(), "Any for focus?")
	require.NoError(t, err)

	require.Len(t, conv, 4)
	for i, msg := range conv {
		want := model.RoleUser
		if i%2 == 1 {
			want = model.RoleAssistant
		}
		assert.Equal(t, want, msg.Role, "message %d", i)
	}
}

func TestSubmit_FailureLeavesHistory(t *testing.T) {
	fr := &fakeRelay{}
	chat := newTestChat(t, fr)

	before, err := chat.Submit(context.Background(), "hello")
	require.NoError(t, err)

	fr.mu.Lock()
	fr.err = &relay.Error{Status: 503, Message: "The assistant service is unavailable"}
	fr.mu.Unlock()

	conv, err := chat.Submit(context.Background(), "again")
	require.Error(t, err)
	assert.True(t, slices.Equal(conv, before))
	assert.True(t, slices.Equal(chat.Conversation(), before))
	assert.Equal(t, "Error: 503 - The assistant service is unavailable", relay.Banner(err))
}

func TestSubmit_EmptyInputSkipsRelay(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t"} {
		fr := &fakeRelay{}
		chat := newTestChat(t, fr)

		_, err := chat.Submit(context.Background(), input)
		var verr *model.ValidationError
		require.True(t, errors.As(err, &verr), "input %q", input)
		assert.ErrorIs(t, err, model.ErrEmptyContent)
		assert.Zero(t, fr.calls())
		assert.Empty(t, chat.Conversation())
	}
}

func TestSubmit_NormalizesInput(t *testing.T) {
	fr := &fakeRelay{}
	chat := newTestChat(t, fr)

	_, err := chat.Submit(context.Background(), "  cafe\u0301 \n")
	require.NoError(t, err)
	require.Equal(t, 1, fr.calls())
	assert.Equal(t, "caf\u00e9", fr.seen[0][0].Content)
}

func TestSubmit_RecordsRecommendations(t *testing.T) {
	fr := &fakeRelay{recs: &relay.Recommendations{
		Goals:       []string{"sleep"},
		Supplements: []relay.Recommendation{{Name: "Magnesium Glycinate", Dosage: "200-400mg"}},
	}}
	chat := newTestChat(t, fr)

	_, err := chat.Submit(context.Background(), "What supplements help sleep?")
	require.NoError(t, err)

	require.NotNil(t, chat.Recommendations())
	sess, ok := chat.store.Get(chat.ID())
	require.True(t, ok)
	assert.Equal(t, []string{"sleep"}, sess.Goals)
	assert.Equal(t, []string{"Magnesium Glycinate"}, sess.Recommended)

	require.NoError(t, chat.Reset())
	assert.Empty(t, chat.Conversation())
	assert.Nil(t, chat.Recommendations())
}

// holdReplies makes fr block every reply until the returned release is
// called. arrived receives once per blocked call.
func holdReplies(fr *fakeRelay) (arrived chan struct{}, release func()) {
	arrived = make(chan struct{}, 4)
	gate := make(chan struct{})
	fr.mu.Lock()
	fr.gate = func() {
		arrived <- struct{}{}
		<-gate
	}
	fr.mu.Unlock()
	return arrived, func() { close(gate) }
}

func TestSubmit_OverlappingTurnsKeepOneReply(t *testing.T) {
	fr := &fakeRelay{reply: func(conv model.Conversation) string {
		return "re: " + conv[len(conv)-1].Content
	}}
	chat := newTestChat(t, fr)
	arrived, release := holdReplies(fr)

	type outcome struct {
		conv model.Conversation
		err  error
	}
	results := make(chan outcome, 2)
	for _, text := range []string{"first", "second"} {
		go func() {
			conv, err := chat.Submit(context.Background(), text)
			results <- outcome{conv, err}
		}()
	}
	<-arrived
	<-arrived
	release()

	a, b := <-results, <-results
	won, lost := a, b
	if a.err != nil {
		won, lost = b, a
	}
	require.NoError(t, won.err)
	require.ErrorIs(t, lost.err, session.ErrConflict)

	stored := chat.Conversation()
	require.Len(t, stored, 2)
	assert.True(t, slices.Equal(stored, won.conv))
	assert.Equal(t, "re: "+stored[0].Content, stored[1].Content)
	assert.True(t, slices.Equal(lost.conv, stored), "loser sees the stored history")
}

// =============================================================================
// HTTP TESTS
// =============================================================================

func newTestServer(fr Chatter) *Server {
	return NewServer(config.Default().Web, fr).WithLogger(quietLogger())
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", CookieName)
	return nil
}

func postForm(h http.Handler, cookie *http.Cookie, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestIndex_SetsSessionCookie(t *testing.T) {
	s := newTestServer(&fakeRelay{})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	c := sessionCookie(t, w)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Contains(t, w.Body.String(), "Longevity Health Agent")
	assert.Contains(t, w.Body.String(), "Medical Disclaimer")
	assert.Equal(t, 1, s.Sessions().Len())
}

func TestSubmitForm_SleepScenario(t *testing.T) {
	fr := &fakeRelay{
		reply: func(model.Conversation) string {
			return "**Magnesium Glycinate** can support sleep quality."
		},
		recs: &relay.Recommendations{Supplements: []relay.Recommendation{
			{Name: "Magnesium Glycinate", Dosage: "200-400mg before bed", ReferralLink: "https://amzn.to/3example"},
		}},
	}
	s := newTestServer(fr)
	h := s.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	cookie := sessionCookie(t, w)

	w = postForm(h, cookie, "/chat", url.Values{"message": {"What supplements help sleep?"}, "turn": {"0"}})
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	userAt := strings.Index(body, "What supplements help sleep?")
	replyAt := strings.Index(body, "<strong>Magnesium Glycinate</strong> can support sleep quality.")
	require.NotEqual(t, -1, userAt)
	require.NotEqual(t, -1, replyAt)
	assert.Less(t, userAt, replyAt, "reply must render under the user message")
	assert.Contains(t, body, "Recommended Supplements:")
	assert.Contains(t, body, "200-400mg before bed")
	assert.NotContains(t, body, `class="banner error"`)
}

func TestIndex_KeepsRecommendationsAfterReload(t *testing.T) {
	fr := &fakeRelay{recs: &relay.Recommendations{Supplements: []relay.Recommendation{
		{Name: "Magnesium Glycinate", Dosage: "200-400mg before bed"},
	}}}
	s := newTestServer(fr)
	h := s.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	cookie := sessionCookie(t, w)

	w = postForm(h, cookie, "/chat", url.Values{"message": {"What supplements help sleep?"}, "turn": {"0"}})
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), "Recommended Supplements:")
	assert.Contains(t, w.Body.String(), "200-400mg before bed")
}

func TestSubmitForm_OverlappingSubmitShowsConflict(t *testing.T) {
	fr := &fakeRelay{}
	s := newTestServer(fr)
	h := s.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	cookie := sessionCookie(t, w)
	arrived, release := holdReplies(fr)

	results := make(chan *httptest.ResponseRecorder, 2)
	for _, text := range []string{"from tab one", "from tab two"} {
		form := url.Values{"message": {text}, "turn": {"0"}}
		go func() { results <- postForm(h, cookie, "/chat", form) }()
	}
	<-arrived
	<-arrived
	release()

	a, b := <-results, <-results
	assert.ElementsMatch(t, []int{http.StatusOK, http.StatusConflict}, []int{a.Code, b.Code})
	lost := a
	if a.Code == http.StatusOK {
		lost = b
	}
	assert.Contains(t, lost.Body.String(), `class="banner error"`)
	assert.Contains(t, lost.Body.String(), "answered first")

	sess, ok := s.Sessions().Get(cookie.Value)
	require.True(t, ok)
	assert.Len(t, sess.Conversation, 2)
}

func TestSubmitForm_UpstreamFailureShowsBanner(t *testing.T) {
	fr := &fakeRelay{err: &relay.Error{Status: 502, Message: "The assistant service returned an error"}}
	s := newTestServer(fr)

	w := postForm(s.Handler(), nil, "/chat", url.Values{"message": {"Hello there"}})
	require.Equal(t, http.StatusBadGateway, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "Error: 502 - The assistant service returned an error")
	assert.Contains(t, body, `value="Hello there"`, "draft must be kept")
}

func TestSubmitForm_TransportFailureShowsBanner(t *testing.T) {
	fr := &fakeRelay{err: &relay.TransportError{Err: errors.New("dial tcp 127.0.0.1:8000: connection refused")}}
	s := newTestServer(fr)

	w := postForm(s.Handler(), nil, "/chat", url.Values{"message": {"Hello"}})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), relay.TransportFailureText)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestSubmitForm_EmptyMessage(t *testing.T) {
	fr := &fakeRelay{}
	s := newTestServer(fr)

	w := postForm(s.Handler(), nil, "/chat", url.Values{"message": {"   "}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Please enter a message.")
	assert.Zero(t, fr.calls())
}

func TestSubmitForm_StaleTurnRedirects(t *testing.T) {
	fr := &fakeRelay{}
	s := newTestServer(fr)
	h := s.Handler()

	w := postForm(h, nil, "/chat", url.Values{"message": {"hi"}, "turn": {"0"}})
	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(t, w)

	// Same form again, as a browser reload would send it.
	w = postForm(h, cookie, "/chat", url.Values{"message": {"hi"}, "turn": {"0"}})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, 1, fr.calls())
}

func TestSubmitForm_SanitisesAssistantHTML(t *testing.T) {
	fr := &fakeRelay{reply: func(model.Conversation) string {
		return `Try this <script>alert(1)</script> [link](javascript:alert(2))`
	}}
	s := newTestServer(fr)

	w := postForm(s.Handler(), nil, "/chat", url.Values{"message": {"<b>hi</b>"}})
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.NotContains(t, body, "<script>alert(1)")
	assert.NotContains(t, body, "javascript:alert")
	assert.Contains(t, body, "&lt;b&gt;hi&lt;/b&gt;")
}

func TestReset(t *testing.T) {
	s := newTestServer(&fakeRelay{})
	h := s.Handler()

	w := postForm(h, nil, "/chat", url.Values{"message": {"hi"}})
	cookie := sessionCookie(t, w)

	w = postForm(h, cookie, "/reset", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)

	sess, ok := s.Sessions().Get(cookie.Value)
	require.True(t, ok)
	assert.Empty(t, sess.Conversation)
}

func TestStaticAndHealth(t *testing.T) {
	s := newTestServer(&fakeRelay{})
	h := s.Handler()

	for _, path := range []string{"/static/app.js", "/static/style.css", "/healthz"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

// relayWithDisclaimer adds a disclaimer endpoint to the fake.
type relayWithDisclaimer struct {
	fakeRelay
}

func (r *relayWithDisclaimer) Disclaimer(ctx context.Context, kind string) (string, error) {
	return "Ask your doctor first.", nil
}

func TestDisclaimer_FromRelay(t *testing.T) {
	s := newTestServer(&relayWithDisclaimer{})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, w.Body.String(), "Ask your doctor first.")
}

func TestEndToEnd_WithRelayClient(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"The assistant service is unavailable","type":"service_unavailable","code":503}}`)
	}))
	defer backend.Close()

	client, err := relay.New(backend.URL, relay.WithLogger(quietLogger()))
	require.NoError(t, err)
	s := newTestServer(client)

	w := postForm(s.Handler(), nil, "/chat", url.Values{"message": {"What supplements help sleep?"}})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "Error: 503 - The assistant service is unavailable")
}
