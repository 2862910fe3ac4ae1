package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Proton-105/candy-heist/internal/banter"
	"github.com/Proton-105/candy-heist/internal/bot"
	"github.com/Proton-105/candy-heist/internal/bot/keyboard"
	apperrors "github.com/Proton-105/candy-heist/internal/errors"
	"github.com/Proton-105/candy-heist/internal/game"
	"github.com/Proton-105/candy-heist/internal/health"
	"github.com/Proton-105/candy-heist/internal/idempotency"
	"github.com/Proton-105/candy-heist/internal/lifecycle"
	"github.com/Proton-105/candy-heist/internal/notify"
	"github.com/Proton-105/candy-heist/internal/ratelimit"
	"github.com/Proton-105/candy-heist/internal/state"
	"github.com/Proton-105/candy-heist/internal/store"
	"github.com/Proton-105/candy-heist/internal/usercache"
	"github.com/Proton-105/candy-heist/pkg/config"
	"github.com/Proton-105/candy-heist/pkg/graceful"
	"github.com/Proton-105/candy-heist/pkg/logger"
	"github.com/Proton-105/candy-heist/pkg/random"
	appredis "github.com/Proton-105/candy-heist/pkg/redis"
)

const (
	sweepInterval    = time.Minute
	rateLimitMaxAge  = time.Hour
	notifyOpenPeriod = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "candy-heist: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, _, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      sentryEnvironment(cfg),
			SampleRate:       cfg.Sentry.SampleRate,
			AttachStacktrace: true,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)
	log.Info("starting candy heist",
		slog.String("env", cfg.AppEnv),
		slog.String("store", cfg.Store.Backend),
		slog.String("bot_mode", cfg.Bot.Mode),
		slog.String("ops_addr", cfg.Server.Addr),
	)

	shutdown := lifecycle.NewShutdown(log)
	checker := health.NewChecker(log)

	var rdb *goredis.Client
	if cfg.UsesRedis() {
		rdb, err = appredis.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		shutdown.Register("redis", lifecycle.Closer(rdb.Close))
		checker.AddCheck("redis", health.NewRedisChecker(rdb))
	}

	rules := game.RulesFromConfig(cfg.Game)
	ledgerStore, err := store.Open(ctx, *cfg, rdb, store.Options{StarterBalance: rules.StarterBalance, Logger: log})
	if err != nil {
		return err
	}
	shutdown.Register("store", lifecycle.Closer(ledgerStore.Close))
	checker.AddCheck("store", health.NewStoreChecker(ledgerStore))

	catalog, err := banter.LoadCatalog(cfg.Game.BanterPath)
	switch {
	case errors.Is(err, banter.ErrNoFile):
		log.Warn("banter catalog not found, using built-in lines", slog.String("path", cfg.Game.BanterPath))
	case err != nil:
		return err
	}

	rnd, err := random.New()
	if err != nil {
		return err
	}

	resolver := game.NewResolver(ledgerStore, banter.NewRotation(catalog, rnd), rnd,
		game.WithRules(rules),
		game.WithLogger(log),
	)

	deps := bot.Deps{
		Resolver:   resolver,
		Guard:      newGuard(ctx, *cfg, rdb, log),
		ErrHandler: apperrors.NewHandler(log, cfg.Sentry.Enabled),
	}

	if rdb != nil {
		deps.FSM = state.NewStateMachine(state.NewRedisStorage(rdb, log, state.DefaultTTL), log, rdb)
		deps.Idempotency = idempotency.NewManager(idempotency.NewRedisStore(rdb, log), log)
		deps.Profiles = usercache.NewRedisCache(rdb, usercache.DefaultTTL)
		go idempotency.NewCleaner(rdb, nil, log, sweepInterval).Run(ctx)
	} else {
		states := state.NewMemoryStorage(state.DefaultTTL)
		updates := idempotency.NewMemoryStore()
		deps.FSM = state.NewStateMachine(states, log, nil)
		deps.Idempotency = idempotency.NewManager(updates, log)
		deps.Profiles = usercache.NewMemoryCache()
		go idempotency.NewCleaner(nil, updates, log, sweepInterval).Run(ctx)
		go state.NewCleaner(states, log, sweepInterval).Run(ctx)
	}

	b, err := bot.New(*cfg, log, deps)
	if err != nil {
		return err
	}
	b.SetNotifier(notify.New(b.Telebot(), resolver.Ledger(), apperrors.NewCircuitBreakerWithTimeout(notifyOpenPeriod), keyboard.NewBuilder(log).DMToggle(), log))
	if cfg.Bot.Token != "" {
		checker.AddCheck("telegram", health.NewTelegramChecker(b.Telebot()))
	} else {
		log.Warn("bot token is empty, running without telegram")
	}

	ops := graceful.NewServer(log, cfg.Server.Addr, health.NewRouter(checker, log), cfg.Server.ShutdownTimeout)
	opsDone := make(chan error, 1)
	go func() { opsDone <- ops.ListenAndServe(ctx) }()

	if cfg.Bot.Token != "" {
		go b.Start()
		shutdown.RegisterDrain("bot", b.Drain)
	}

	select {
	case <-ctx.Done():
	case err := <-opsDone:
		if err != nil {
			log.Error("ops server stopped", slog.Any("error", err))
		}
		stop()
	}

	log.Info("candy heist shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return shutdown.Execute(shutdownCtx)
}

// newGuard builds the rate limiter. With Redis it counts in Redis and falls back to memory while
// Redis is unreachable. Returns nil when rate limiting is disabled.
func newGuard(ctx context.Context, cfg config.Config, rdb *goredis.Client, log *slog.Logger) *ratelimit.Guard {
	if !cfg.RateLimit.Enabled {
		return nil
	}

	memory := ratelimit.NewMemoryLimiter(log)
	var limiter ratelimit.Limiter = memory
	var client *goredis.Client
	if cfg.RateLimit.Backend == "redis" && rdb != nil {
		limiter = ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(rdb, log), memory, log)
		client = rdb
	}

	go ratelimit.NewCleaner(client, memory, log, sweepInterval, rateLimitMaxAge).Run(ctx)

	return ratelimit.NewGuard(limiter, ratelimit.NewRules(cfg.RateLimit), log)
}

func sentryEnvironment(cfg *config.Config) string {
	if cfg.Sentry.Environment != "" {
		return cfg.Sentry.Environment
	}
	return cfg.AppEnv
}
