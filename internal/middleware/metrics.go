// Package middleware holds the cross-cutting wrappers for bot handlers and the ops HTTP server.
package middleware

import (
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/candy-heist/internal/bot/handlers"
	"github.com/Proton-105/candy-heist/internal/bot/keyboard"
	"github.com/Proton-105/candy-heist/pkg/metrics"
)

// Metrics measures execution time and status for bot handlers, reporting them to Prometheus.
func Metrics(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		command := CommandName(c)
		status := "ok"
		if err != nil {
			status = "error"
		}

		metrics.RecordCommand(command, status, time.Since(start))

		return err
	}
}

// CommandName returns a low-cardinality label for the update: the command without arguments or
// bot mention, the callback's unique part, or "text" for free text.
func CommandName(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}

	if cb := c.Callback(); cb != nil && cb.Data != "" {
		unique, _, err := keyboard.DecodeCallback(strings.TrimPrefix(cb.Data, "\f"))
		if err == nil {
			return "cb:" + unique
		}
		return "cb"
	}

	text := strings.TrimSpace(c.Text())
	if text == "" {
		return "unknown"
	}
	if !strings.HasPrefix(text, "/") {
		return "text"
	}

	cmd, _, _ := strings.Cut(strings.Fields(text)[0], "@")
	return strings.ToLower(cmd)
}
