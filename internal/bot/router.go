package bot

import (
	"log/slog"
	"strings"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/candy-heist/internal/bot/handlers"
	"github.com/Proton-105/candy-heist/internal/bot/keyboard"
)

// Router sends each update to a command, callback or state handler, wrapped in the middleware
// chain. Plain chatter outside a flow is ignored.
type Router struct {
	dispatcher *Dispatcher
	log        *slog.Logger

	mu          sync.RWMutex
	commands    map[string]handlers.Handler
	callbacks   map[string]handlers.CallbackHandler
	middlewares []handlers.Middleware
}

// NewRouter builds a Router with empty registries.
func NewRouter(dispatcher *Dispatcher, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		dispatcher: dispatcher,
		log:        log,
		commands:   make(map[string]handlers.Handler),
		callbacks:  make(map[string]handlers.CallbackHandler),
	}
}

// RegisterCommand registers a handler for "/cmd". Matching ignores case and a "@BotName" suffix.
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(cmd)] = h
}

// RegisterCallback registers a handler for the unique part of callback data.
func (r *Router) RegisterCallback(unique string, h handlers.CallbackHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[unique] = h
}

// Use appends a middleware. The first one registered is the outermost.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// Route directs the incoming update to the appropriate handler.
func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}

	if cb := c.Callback(); cb != nil {
		h := r.callback(cb.Data)
		if h == nil {
			r.log.Info("no callback handler found", "data", cb.Data)
			return c.Respond()
		}
		return r.run(handlers.Handler(h), c)
	}

	text := strings.TrimSpace(c.Text())
	if strings.HasPrefix(text, "/") {
		return r.run(r.command(text), c)
	}

	if c.Sender() == nil {
		return nil
	}
	h, err := r.dispatcher.HandlerFor(handlers.RequestContext(c), c.Sender().ID)
	if err != nil {
		r.log.Error("failed to resolve state handler", "user_id", c.Sender().ID, "error", err)
		return nil
	}
	return r.run(h, c)
}

func (r *Router) run(h handlers.Handler, c telebot.Context) error {
	if h == nil {
		return nil
	}

	r.mu.RLock()
	chain := r.middlewares
	r.mu.RUnlock()

	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h(c)
}

func (r *Router) callback(data string) handlers.CallbackHandler {
	unique, _, err := keyboard.DecodeCallback(strings.TrimPrefix(data, "\f"))
	if err != nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbacks[unique]
}

// command looks up "/cmd" from text like "/cmd@CandyBot 5".
func (r *Router) command(text string) handlers.Handler {
	cmd, _, _ := strings.Cut(strings.Fields(text)[0], "@")

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[strings.ToLower(cmd)]
}
