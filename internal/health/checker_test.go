package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"

	"github.com/Proton-105/candy-heist/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	checker := NewChecker(testLogger())
	checker.AddCheck("store", NewStoreChecker(store.New(store.NewMemoryBackend(), store.Options{Logger: testLogger()})))
	checker.AddCheck("redis", NewRedisChecker(client))
	checker.AddCheck("telegram", NewTelegramChecker(nil))
	checker.AddCheck("", CheckFunc(func(context.Context) error { return nil }))
	checker.AddCheck("nil", nil)

	assert.Equal(t, []string{"redis", "store", "telegram"}, checker.Names())

	results := checker.Check(context.Background())
	assert.Equal(t, StatusOK, results["store"])
	assert.Equal(t, StatusOK, results["redis"])
	assert.Contains(t, results["telegram"], "not initialized")
	assert.False(t, Healthy(results))

	mr.Close()
	results = checker.Check(context.Background())
	assert.NotEqual(t, StatusOK, results["redis"])
}

func TestTelegramChecker(t *testing.T) {
	bot, err := telebot.NewBot(telebot.Settings{Offline: true})
	require.NoError(t, err)

	assert.Error(t, NewTelegramChecker(bot).HealthCheck(context.Background()), "offline bot has no identity")

	bot.Me = &telebot.User{ID: 42, IsBot: true}
	assert.NoError(t, NewTelegramChecker(bot).HealthCheck(context.Background()))
}

func TestRouter(t *testing.T) {
	healthy := true
	checker := NewChecker(testLogger())
	checker.AddCheck("store", CheckFunc(func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("vault unreachable")
	}))
	router := NewRouter(checker, testLogger())

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, StatusOK, body.Components["store"])

	healthy = false
	rec = get("/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "vault unreachable", body.Components["store"])

	assert.Equal(t, http.StatusOK, get("/livez").Code)

	rec = get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	assert.Equal(t, http.StatusNotFound, get("/nope").Code)
}
