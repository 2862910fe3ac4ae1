package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/Proton-105/candy-heist/internal/errors"
	"github.com/Proton-105/candy-heist/internal/idempotency"
	"github.com/Proton-105/candy-heist/internal/ratelimit"
	"github.com/Proton-105/candy-heist/pkg/config"
	"github.com/Proton-105/candy-heist/pkg/logger"
)

type stubContext struct {
	telebot.Context

	sender *telebot.User
	msg    *telebot.Message
	cb     *telebot.Callback
}

func (s *stubContext) Sender() *telebot.User       { return s.sender }
func (s *stubContext) Message() *telebot.Message   { return s.msg }
func (s *stubContext) Callback() *telebot.Callback { return s.cb }
func (s *stubContext) Get(string) interface{}      { return nil }

func (s *stubContext) Text() string {
	if s.msg == nil {
		return ""
	}
	return s.msg.Text
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		name string
		ctx  telebot.Context
		want string
	}{
		{name: "nil context", ctx: nil, want: "unknown"},
		{name: "command", ctx: &stubContext{msg: &telebot.Message{Text: "/heist"}}, want: "/heist"},
		{name: "command with mention and args", ctx: &stubContext{msg: &telebot.Message{Text: "/Gift@CandyBot 10"}}, want: "/gift"},
		{name: "free text", ctx: &stubContext{msg: &telebot.Message{Text: "25"}}, want: "text"},
		{name: "empty", ctx: &stubContext{msg: &telebot.Message{}}, want: "unknown"},
		{name: "callback", ctx: &stubContext{cb: &telebot.Callback{Data: "act:heist:42"}}, want: "cb:act"},
		{name: "legacy callback prefix", ctx: &stubContext{cb: &telebot.Callback{Data: "\fboard"}}, want: "cb:board"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CommandName(tt.ctx))
		})
	}
}

func TestUpdateKey(t *testing.T) {
	chat := &telebot.Chat{ID: -7}

	msg := &stubContext{msg: &telebot.Message{ID: 3, Chat: chat, Text: "/candy"}}
	sameMsg := &stubContext{msg: &telebot.Message{ID: 3, Chat: chat, Text: "/candy"}}
	otherMsg := &stubContext{msg: &telebot.Message{ID: 4, Chat: chat, Text: "/candy"}}
	cb := &stubContext{cb: &telebot.Callback{ID: "abc", Message: &telebot.Message{ID: 3, Chat: chat}}}
	cbNoID := &stubContext{cb: &telebot.Callback{Message: &telebot.Message{ID: 3, Chat: chat}}}

	assert.NotEmpty(t, UpdateKey(msg))
	assert.Equal(t, UpdateKey(msg), UpdateKey(sameMsg))
	assert.NotEqual(t, UpdateKey(msg), UpdateKey(otherMsg))
	assert.NotEqual(t, UpdateKey(msg), UpdateKey(cb))
	assert.NotEqual(t, UpdateKey(cb), UpdateKey(cbNoID))
	assert.NotEqual(t, UpdateKey(msg), UpdateKey(cbNoID), "callback on a message is not the message")

	assert.Empty(t, UpdateKey(nil))
	assert.Empty(t, UpdateKey(&stubContext{msg: &telebot.Message{}}))
	assert.Empty(t, UpdateKey(&stubContext{cb: &telebot.Callback{}}))
}

func TestIdempotency(t *testing.T) {
	mw := Idempotency(idempotency.NewManager(idempotency.NewMemoryStore(), discardLogger()), discardLogger())

	calls := 0
	handler := mw(func(telebot.Context) error {
		calls++
		return nil
	})

	update := &stubContext{msg: &telebot.Message{ID: 9, Chat: &telebot.Chat{ID: 1}, Text: "/lock"}}
	require.NoError(t, handler(update))
	require.NoError(t, handler(update))
	assert.Equal(t, 1, calls)

	t.Run("an escaping error leaves the update retryable", func(t *testing.T) {
		boom := errors.New("boom")
		failures := 0
		failing := mw(func(telebot.Context) error {
			failures++
			return boom
		})

		retry := &stubContext{msg: &telebot.Message{ID: 10, Chat: &telebot.Chat{ID: 1}}}
		assert.ErrorIs(t, failing(retry), boom)
		assert.ErrorIs(t, failing(retry), boom)
		assert.Equal(t, 2, failures)
	})

	t.Run("nil manager passes through", func(t *testing.T) {
		n := 0
		h := Idempotency(nil, nil)(func(telebot.Context) error { n++; return nil })
		require.NoError(t, h(update))
		require.NoError(t, h(update))
		assert.Equal(t, 2, n)
	})
}

func TestRateLimit(t *testing.T) {
	log := discardLogger()
	rules := ratelimit.NewRules(config.RateLimitConfig{
		Enabled:   true,
		PerUser:   config.RateLimitRule{Limit: 2, Window: "1m"},
		Whitelist: []int64{99},
	})
	guard := ratelimit.NewGuard(ratelimit.NewMemoryLimiter(log), rules, log)

	calls := 0
	handler := RateLimit(guard, log)(func(telebot.Context) error {
		calls++
		return nil
	})

	player := &stubContext{sender: &telebot.User{ID: 1}, msg: &telebot.Message{Text: "/candy"}}
	require.NoError(t, handler(player))
	require.NoError(t, handler(player))

	err := handler(player)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeRateLimit, appErr.Code)
	assert.ErrorIs(t, err, ratelimit.ErrLimitExceeded)
	assert.Equal(t, 2, calls)

	staff := &stubContext{sender: &telebot.User{ID: 99}, msg: &telebot.Message{Text: "/candy"}}
	for i := 0; i < 5; i++ {
		require.NoError(t, handler(staff))
	}
	assert.Equal(t, 7, calls)

	t.Run("no guard", func(t *testing.T) {
		h := RateLimit(nil, log)(func(telebot.Context) error { return nil })
		assert.NoError(t, h(player))
	})
}

func TestHTTPLogging(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) })
	handler := logger.Middleware(New(log)(mux))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, buf.String(), `"level":"DEBUG"`)
	assert.Contains(t, buf.String(), `"path":"/ok"`)
	assert.Contains(t, buf.String(), `"status":204`)
	assert.Contains(t, buf.String(), `"correlation_id":"`)

	buf.Reset()
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/broken", nil).WithContext(context.Background())
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"status":503`)
}
