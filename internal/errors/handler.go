package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/candy-heist/pkg/logger"
	"github.com/Proton-105/candy-heist/pkg/metrics"
)

// Handler logs failures, forwards the serious ones to Sentry and picks the text shown to players.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, sentryEnabled: sentryEnabled}
}

// Handle returns the user-facing message for err and whether retrying the action may succeed.
// Errors that are not an *AppError are treated as high severity and never retryable.
func (h *Handler) Handle(ctx context.Context, err error) (string, bool) {
	if err == nil {
		return "", false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	appErr, known := classify(err)

	attrs := []slog.Attr{
		slog.String("code", appErr.Code),
		slog.String("message", appErr.Message),
		slog.String("severity", string(appErr.Severity)),
		slog.Bool("retryable", appErr.Retryable),
	}
	if cause := appErr.Unwrap(); cause != nil && known {
		attrs = append(attrs, slog.String("cause", cause.Error()))
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("correlation_id", id))
	}

	level, msg := slog.LevelError, "application error"
	switch {
	case !known:
		msg = "unknown error"
	case appErr.Severity == SeverityLow:
		level = slog.LevelWarn
	}
	h.log.LogAttrs(ctx, level, msg, attrs...)
	metrics.RecordError(appErr.Code, string(appErr.Severity))

	if h.sentryEnabled && (appErr.Severity == SeverityCritical || appErr.Severity == SeverityHigh) {
		h.capture(ctx, err, appErr)
	}

	if appErr.UserMessage == "" {
		return defaultUserMessage, appErr.Retryable
	}
	return appErr.UserMessage, appErr.Retryable
}

// classify returns the *AppError inside err, or a synthetic high severity one labelled "unknown".
func classify(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr, true
	}
	return &AppError{
		Code:     "unknown",
		Message:  err.Error(),
		Severity: SeverityHigh,
		cause:    err,
	}, false
}

func (h *Handler) capture(ctx context.Context, err error, appErr *AppError) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("code", appErr.Code)
		scope.SetTag("severity", string(appErr.Severity))
		if id := logger.CorrelationIDFromContext(ctx); id != "" {
			scope.SetTag("correlation_id", id)
		}
		hub.CaptureException(err)
	})
}
