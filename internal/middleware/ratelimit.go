package middleware

import (
	"log/slog"

	"gopkg.in/telebot.v3"

	"github.com/Proton-105/candy-heist/internal/bot/handlers"
	"github.com/Proton-105/candy-heist/internal/ratelimit"
)

// RateLimit enforces the per-user budget on every update. Rejections are returned as rate limit
// errors so the error handling middleware answers the player. Per-action budgets are checked by
// the interaction handlers once the action is known.
func RateLimit(guard *ratelimit.Guard, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			if guard == nil || c == nil || c.Sender() == nil {
				return next(c)
			}

			userID := c.Sender().ID
			if err := guard.Allow(handlers.RequestContext(c), userID, ""); err != nil {
				log.Warn("rate limit exceeded", slog.Int64("user_id", userID))
				return err
			}

			return next(c)
		}
	}
}
