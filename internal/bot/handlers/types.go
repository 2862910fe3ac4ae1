// Package handlers implements the bot's commands, callbacks and state steps.
package handlers

import (
	"context"
	"log/slog"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/candy-heist/internal/bot/keyboard"
	"github.com/Proton-105/candy-heist/internal/game"
	"github.com/Proton-105/candy-heist/internal/notify"
	"github.com/Proton-105/candy-heist/internal/ratelimit"
	"github.com/Proton-105/candy-heist/internal/state"
	"github.com/Proton-105/candy-heist/internal/usercache"
)

// Handler processes bot commands.
type Handler func(c telebot.Context) error

// CallbackHandler processes inline callback events.
type CallbackHandler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// HandlerFunc adapts ordinary functions to the Handler interface.
type HandlerFunc func(c telebot.Context) error

// Handle executes the underlying function.
func (h HandlerFunc) Handle(c telebot.Context) error {
	return h(c)
}

// ContextKey is where the logging middleware stores the update's context.Context.
const ContextKey = "request_ctx"

// RequestContext returns the context attached to the update, or context.Background.
func RequestContext(c telebot.Context) context.Context {
	if c != nil {
		if ctx, ok := c.Get(ContextKey).(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// Deliverer sends interaction notices; *notify.Notifier implements it.
type Deliverer interface {
	Deliver(ctx context.Context, d *game.Directive) (string, error)
}

var _ Deliverer = (*notify.Notifier)(nil)

// Game bundles what the game handlers need. Notifier, Guard and Profiles may be nil.
type Game struct {
	Resolver *game.Resolver
	Notifier Deliverer
	Guard    *ratelimit.Guard
	FSM      state.StateMachine
	Keyboard *keyboard.Builder
	Profiles usercache.Cache
	IsAdmin  func(userID int64) bool
	Log      *slog.Logger
}

func (g *Game) log() *slog.Logger {
	if g.Log == nil {
		return slog.Default()
	}
	return g.Log
}

func playerID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func displayName(u *telebot.User) string {
	if u == nil {
		return ""
	}
	return usercache.Profile{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
	}.DisplayName()
}

// reply answers in the chat the update came from, acknowledging callbacks first.
func reply(c telebot.Context, text string, opts ...interface{}) error {
	if c.Callback() != nil {
		_ = c.Respond()
	}
	return c.Send(text, opts...)
}

func respondCallback(c telebot.Context, text string, alert bool) error {
	if c == nil {
		return nil
	}
	return c.Respond(&telebot.CallbackResponse{
		Text:      text,
		ShowAlert: alert,
	})
}
