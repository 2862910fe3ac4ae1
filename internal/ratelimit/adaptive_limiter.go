package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rateLimitChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_checks_total",
		Help: "Total number of rate limit checks by backend and result.",
	}, []string{"backend", "result"})

	rateLimitRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_rejected_total",
		Help: "Total number of rejected requests per backend.",
	}, []string{"backend"})

	rateLimitRedisErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratelimit_redis_errors_total",
		Help: "Total number of Redis errors encountered by the limiter.",
	})
)

func init() {
	prometheus.MustRegister(rateLimitChecksTotal, rateLimitRejectedTotal, rateLimitRedisErrorsTotal)
}

// AdaptiveLimiter checks against Redis and, while Redis is failing, against an in-process limiter
// at half the budget. Each replica then enforces its own window, so halving keeps the combined
// rate close to the configured one.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback Limiter
	log      *slog.Logger
}

var _ Limiter = (*AdaptiveLimiter)(nil)

// NewAdaptiveLimiter wraps primary with fallback.
func NewAdaptiveLimiter(primary, fallback Limiter, log *slog.Logger) *AdaptiveLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &AdaptiveLimiter{primary: primary, fallback: fallback, log: log}
}

// Check implements Limiter.
func (a *AdaptiveLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	backend := "redis"
	result, err := a.primary.Check(ctx, key, limit, window)
	if err != nil {
		rateLimitRedisErrorsTotal.Inc()
		a.log.Warn("redis limiter failed, falling back to in-memory", "key", key, "error", err)

		backend = "fallback"
		if result, err = a.fallback.Check(ctx, key, max(limit/2, 1), window); err != nil {
			return nil, err
		}
	}

	outcome := "allowed"
	if !result.Allowed {
		outcome = "rejected"
		rateLimitRejectedTotal.WithLabelValues(backend).Inc()
	}
	rateLimitChecksTotal.WithLabelValues(backend, outcome).Inc()
	return result, nil
}
