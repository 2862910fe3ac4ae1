// Package bot wires the Telegram gateway to the game handlers.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/candy-heist/internal/bot/handlers"
	"github.com/Proton-105/candy-heist/internal/bot/keyboard"
	errors "github.com/Proton-105/candy-heist/internal/errors"
	"github.com/Proton-105/candy-heist/internal/game"
	"github.com/Proton-105/candy-heist/internal/idempotency"
	"github.com/Proton-105/candy-heist/internal/middleware"
	"github.com/Proton-105/candy-heist/internal/ratelimit"
	"github.com/Proton-105/candy-heist/internal/state"
	"github.com/Proton-105/candy-heist/internal/usercache"
	"github.com/Proton-105/candy-heist/pkg/config"
)

// Deps are the services the bot routes updates to. Idempotency, Guard, Profiles and Notifier
// are optional.
type Deps struct {
	Resolver    *game.Resolver
	FSM         state.StateMachine
	Notifier    handlers.Deliverer
	Guard       *ratelimit.Guard
	Idempotency idempotency.Manager
	Profiles    usercache.Cache
	ErrHandler  *errors.Handler
}

// Bot wraps telebot.Bot with application dependencies required for handling updates.
type Bot struct {
	telebot    *telebot.Bot
	log        *slog.Logger
	cfg        config.Config
	deps       Deps
	router     *Router
	dispatcher *Dispatcher
	keyboard   *keyboard.Builder
	game       *handlers.Game

	running  atomic.Bool
	inflight inflight
}

// New builds a telegram bot instance configured according to the application settings.
// An empty token creates an offline bot, which is what tests use.
func New(cfg config.Config, log *slog.Logger, deps Deps) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	settings := telebot.Settings{
		Token:   cfg.Bot.Token,
		Offline: cfg.Bot.Token == "",
		OnError: func(err error, c telebot.Context) {
			log.Error("telebot error", slog.Any("error", err))
		},
	}

	if cfg.Bot.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{
			Listen: cfg.Server.WebhookAddr,
		}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.Bot.Timeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	if deps.ErrHandler == nil {
		deps.ErrHandler = errors.NewHandler(log, cfg.Sentry.Enabled)
	}

	kb := keyboard.NewBuilder(log)
	dispatcher := NewDispatcher(deps.FSM)

	b := &Bot{
		telebot:    tb,
		log:        log,
		cfg:        cfg,
		deps:       deps,
		router:     NewRouter(dispatcher, log),
		dispatcher: dispatcher,
		keyboard:   kb,
		game: &handlers.Game{
			Resolver: deps.Resolver,
			Notifier: deps.Notifier,
			Guard:    deps.Guard,
			FSM:      deps.FSM,
			Keyboard: kb,
			Profiles: deps.Profiles,
			IsAdmin:  cfg.IsAdmin,
			Log:      log.With(slog.String("component", "handlers")),
		},
	}

	b.setupRouter()
	b.registerTelebotHandlers()

	return b, nil
}

// Start runs the telegram bot event loop. It blocks until Stop.
func (b *Bot) Start() {
	if b.telebot == nil {
		return
	}

	if err := b.publishCommands(); err != nil {
		b.log.Warn("failed to publish bot commands", slog.Any("error", err))
	}
	b.running.Store(true)
	b.telebot.Start()
}

// Stop stops polling for updates. Updates already being handled keep running; see Drain.
func (b *Bot) Stop() {
	if b.telebot == nil || !b.running.CompareAndSwap(true, false) {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Drain stops polling and waits until the updates being handled have finished, or ctx ends.
// Run it before closing the store and Redis so no update loses its backend midway.
func (b *Bot) Drain(ctx context.Context) error {
	b.Stop()
	if err := b.inflight.wait(ctx); err != nil {
		b.log.Warn("updates still in flight at shutdown", slog.Any("error", err))
		return err
	}
	return nil
}

// Telebot exposes the underlying telebot.Bot instance for integrations such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

// SetNotifier installs the DM notifier. The notifier sends through Telebot, so it is built after
// the bot; call this before Start.
func (b *Bot) SetNotifier(n handlers.Deliverer) {
	b.deps.Notifier = n
	b.game.Notifier = n
}

// Route feeds one update context through the router.
func (b *Bot) Route(c telebot.Context) error {
	b.inflight.begin()
	defer b.inflight.end()
	return b.router.Route(c)
}

func (b *Bot) setupRouter() {
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(RecoveryMiddleware(b.log, b.deps.ErrHandler))
	b.router.Use(middleware.Idempotency(b.deps.Idempotency, b.log))
	b.router.Use(ErrorHandlingMiddleware(b.deps.ErrHandler))
	b.router.Use(middleware.Metrics)
	b.router.Use(middleware.RateLimit(b.deps.Guard, b.log))
	b.router.Use(ProfileMiddleware(b.deps.Profiles, b.log))

	g := b.game
	b.router.RegisterCommand(CommandStart, g.Start())
	b.router.RegisterCommand(CommandHelp, g.Help())
	b.router.RegisterCommand(CommandCandy, g.Panel())
	b.router.RegisterCommand(CommandGift, g.Gift())
	b.router.RegisterCommand(CommandHeist, g.Interaction(game.ActionHeist))
	b.router.RegisterCommand(CommandSnowball, g.Interaction(game.ActionSnowball))
	b.router.RegisterCommand(CommandLock, g.Lock())
	b.router.RegisterCommand(CommandLeaderboard, g.Leaderboard())
	b.router.RegisterCommand(CommandDMs, g.ToggleNotifications())
	b.router.RegisterCommand(CommandPlayers, g.Players())
	b.router.RegisterCommand(CommandCancel, g.Cancel())

	b.router.RegisterCallback(keyboard.CallbackAction, handlers.CallbackHandler(g.PanelAction()))
	b.router.RegisterCallback(keyboard.CallbackLock, handlers.CallbackHandler(g.Lock()))
	b.router.RegisterCallback(keyboard.CallbackBoard, handlers.CallbackHandler(g.Leaderboard()))
	b.router.RegisterCallback(keyboard.CallbackDMs, handlers.CallbackHandler(g.ToggleNotifications()))
	b.router.RegisterCallback(keyboard.CallbackPlayers, handlers.CallbackHandler(g.Players()))
	b.router.RegisterCallback(keyboard.CallbackAmount, g.GiftAmountButton())
	b.router.RegisterCallback(keyboard.CallbackCancel, handlers.CallbackHandler(g.Cancel()))

	b.dispatcher.RegisterStateHandler(state.StateGiftAmount, g.GiftAmountText())
}

func (b *Bot) registerTelebotHandlers() {
	b.telebot.Handle(telebot.OnText, b.Route)
	b.telebot.Handle(telebot.OnCallback, b.Route)
}

func (b *Bot) publishCommands() error {
	cmds := make([]telebot.Command, 0, len(menuCommands))
	for _, c := range menuCommands {
		cmds = append(cmds, telebot.Command{Text: c.Text[1:], Description: c.Description})
	}
	return b.telebot.SetCommands(cmds)
}
