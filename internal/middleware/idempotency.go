package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/candy-heist/internal/bot/handlers"
	"github.com/Proton-105/candy-heist/internal/idempotency"
)

// UpdateTTL is how long a handled update is remembered.
const UpdateTTL = 24 * time.Hour

// Idempotency ensures handlers execute at most once per Telegram update key. It is installed
// outside the error handling middleware, which answers the player and returns nil, so an update
// that failed is still recorded and a redelivery is dropped. Only a handler error that escapes
// the chain leaves the key free for a retry.
func Idempotency(manager idempotency.Manager, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			key := UpdateKey(c)
			if key == "" {
				return next(c)
			}

			result, err := manager.Execute(handlers.RequestContext(c), key, UpdateTTL, func(context.Context) error {
				return next(c)
			})
			if err != nil {
				if errors.Is(err, idempotency.ErrRequestInProgress) {
					log.Debug("duplicate update dropped while in progress", slog.String("key", key))
					return nil
				}
				return err
			}

			if result.Duplicate {
				log.Info("duplicate update ignored", slog.String("key", key))
			}

			return nil
		}
	}
}

// UpdateKey identifies the update behind c: callback queries by id, messages by chat and message id.
func UpdateKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	if cb := c.Callback(); cb != nil {
		if cb.ID != "" {
			return idempotency.GenerateKey("cb", cb.ID)
		}

		if cb.Message != nil && cb.Message.Chat != nil {
			return idempotency.GenerateKey("cb-msg", cb.Message.Chat.ID, cb.Message.ID)
		}
		return ""
	}

	if msg := c.Message(); msg != nil && msg.ID != 0 {
		chatID := int64(0)
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		return idempotency.GenerateKey("msg", chatID, msg.ID)
	}

	return ""
}
