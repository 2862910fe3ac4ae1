package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/candy-heist/internal/bot/handlers"
	errors "github.com/Proton-105/candy-heist/internal/errors"
	"github.com/Proton-105/candy-heist/internal/middleware"
	"github.com/Proton-105/candy-heist/internal/usercache"
	"github.com/Proton-105/candy-heist/pkg/logger"
)

const fallbackUserMessage = "⚠️ Something went wrong. Please try again later."

// RecoveryMiddleware turns a handler panic into a critical StateError so the player gets an
// answer and Sentry gets the stack.
func RecoveryMiddleware(log *slog.Logger, errHandler *errors.Handler) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				log.Error("panic recovered in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

				appErr := errors.NewStateError("handler panic").WithCause(fmt.Errorf("panic recovered: %v", r))
				appErr.Severity = errors.SeverityCritical
				answerFailure(c, errHandler, appErr, log)
				err = nil
			}()

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware reports handler errors and answers the player. The error stops here.
func ErrorHandlingMiddleware(errHandler *errors.Handler) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			if err := next(c); err != nil {
				answerFailure(c, errHandler, err, slog.Default())
			}
			return nil
		}
	}
}

// answerFailure shows the player-facing text for err: an alert for button presses, a chat
// message otherwise.
func answerFailure(c telebot.Context, errHandler *errors.Handler, err error, log *slog.Logger) {
	text := fallbackUserMessage
	if errHandler != nil {
		if msg, _ := errHandler.Handle(handlers.RequestContext(c), err); msg != "" {
			text = msg
		}
	}
	if c == nil {
		return
	}

	var sendErr error
	if c.Callback() != nil {
		sendErr = c.Respond(&telebot.CallbackResponse{Text: text, ShowAlert: true})
	} else {
		sendErr = c.Send(text)
	}
	if sendErr != nil {
		log.Warn("failed to tell player about failure", slog.Any("error", sendErr))
	}
}

// LoggingMiddleware attaches a correlation id to the update and logs basic telemetry about it.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			start := time.Now()
			ctx, correlationID := logger.WithCorrelationID(handlers.RequestContext(c))
			c.Set(handlers.ContextKey, ctx)

			var userID int64
			if c.Sender() != nil {
				userID = c.Sender().ID
			}
			updateLog := log.With(
				slog.Int64("user_id", userID),
				slog.String("command", middleware.CommandName(c)),
				slog.String("correlation_id", correlationID),
			)

			updateLog.DebugContext(ctx, "handling update")
			err := next(c)
			updateLog.InfoContext(ctx, "handled update", slog.Duration("duration", time.Since(start)), slog.Any("error", err))
			return err
		}
	}
}

// ProfileMiddleware remembers the names of the sender and of the author being replied to,
// so boards can show names. Failures are logged and never block the update.
func ProfileMiddleware(cache usercache.Cache, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			if cache != nil {
				ctx := handlers.RequestContext(c)
				remember(ctx, cache, log, c.Sender())
				if msg := c.Message(); msg != nil && msg.ReplyTo != nil {
					remember(ctx, cache, log, msg.ReplyTo.Sender)
				}
			}

			return next(c)
		}
	}
}

func remember(ctx context.Context, cache usercache.Cache, log *slog.Logger, u *telebot.User) {
	if u == nil || u.IsBot {
		return
	}

	err := cache.Set(ctx, usercache.Profile{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
	})
	if err != nil {
		log.WarnContext(ctx, "failed to remember player profile", slog.Int64("user_id", u.ID), slog.Any("error", err))
	}
}
