package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	mu     sync.Mutex
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func TestNotifierFiltersEvents(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{EventDesync}, testLogger())

	ctx := context.Background()
	require.NoError(t, n.Notify(ctx, EventResync, "Synced", "ignored"))
	assert.Empty(t, sender.titles)

	require.NoError(t, n.Notify(ctx, EventDesync, "Desynced", "delivered"))
	assert.Equal(t, []string{"Desynced"}, sender.titles)
}

func TestNotifierEmptyFilterAllowsEverything(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventFeedError, "Feed down", ""))
	assert.Len(t, sender.titles, 1)
}

func TestNotifierKeepsDeliveringPastFailedSender(t *testing.T) {
	failing := &recordingSender{name: "failing", err: errors.New("boom")}
	healthy := &recordingSender{name: "healthy"}
	n := NewNotifier([]Sender{failing, healthy}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "Alert", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")
	assert.Len(t, healthy.titles, 1, "a failing sender must not block the rest")
}

func TestTelegramSenderPostsMessage(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewTelegramSender("bot-token", "chat-42")
	sender.apiBase = srv.URL

	require.NoError(t, sender.Send(context.Background(), "Desynced", "reason=gap"))
	assert.Equal(t, "/botbot-token/sendMessage", gotPath)
	assert.Equal(t, "chat-42", gotBody["chat_id"])
	assert.Equal(t, "*Desynced*\nreason=gap", gotBody["text"])
	assert.Equal(t, "Markdown", gotBody["parse_mode"])
}

func TestDiscordSenderReportsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	err := sender.Send(context.Background(), "Alert", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestDiscordSenderAcceptsNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "**Alert**\nbody", body["content"])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	require.NoError(t, sender.Send(context.Background(), "Alert", "body"))
}
