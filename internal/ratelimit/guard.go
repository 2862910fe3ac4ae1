package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Proton-105/candy-heist/internal/errors"
)

// Guard applies the configured per-user and per-action rules for a player.
type Guard struct {
	limiter Limiter
	rules   *Rules
	log     *slog.Logger
	now     func() time.Time
}

// NewGuard wires a limiter to a rule set.
func NewGuard(limiter Limiter, rules *Rules, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{limiter: limiter, rules: rules, log: log, now: time.Now}
}

// Allow returns nil when userID may perform action now. A rejection is a rate limit AppError
// wrapping ErrLimitExceeded. An empty action checks only the per-user rule. Backend failures
// are logged and let the request through.
func (g *Guard) Allow(ctx context.Context, userID int64, action string) error {
	if g == nil || g.limiter == nil || g.rules.IsWhitelisted(userID) {
		return nil
	}

	if limit, window, err := g.rules.GetPerUserLimit(); err == nil {
		if err := g.check(ctx, fmt.Sprintf("user:%d", userID), limit, window); err != nil {
			return err
		}
	} else if !errors.Is(err, ErrNoRule) {
		g.log.Warn("invalid per-user rate limit rule", slog.Any("error", err))
	}

	if action == "" {
		return nil
	}

	limit, window, err := g.rules.GetActionLimit(action)
	if err != nil {
		if !errors.Is(err, ErrNoRule) {
			g.log.Warn("invalid action rate limit rule", slog.String("action", action), slog.Any("error", err))
		}
		return nil
	}
	return g.check(ctx, fmt.Sprintf("action:%s:%d", action, userID), limit, window)
}

func (g *Guard) check(ctx context.Context, key string, limit int, window time.Duration) error {
	result, err := g.limiter.Check(ctx, key, limit, window)
	if err != nil {
		g.log.Error("rate limit check failed", slog.String("key", key), slog.Any("error", err))
		return nil
	}
	if result.Allowed {
		return nil
	}
	return apperrors.NewRateLimitError(result.RetryAfter(g.now())).WithCause(ErrLimitExceeded)
}
