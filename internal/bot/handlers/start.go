package handlers

import (
	"errors"
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/candy-heist/internal/bot/keyboard"
	"github.com/Proton-105/candy-heist/internal/state"
)

const helpText = `🍬 The Candy Heist
Everyone starts with a stocking of Candy Canes. Reply to someone's message with:
/gift [amount] - give them candy
/heist - try to steal a quarter of their stash
/snowball - knock a few candies loose
Or on your own:
/lock - lock your stocking for a while
/leaderboard - the richest players
/dms - turn heist notices on or off
/candy - open the game panel`

// Start greets the player and resets any unfinished flow.
func (g *Game) Start() Handler {
	return func(c telebot.Context) error {
		if c == nil || c.Sender() == nil {
			g.log().Warn("start handler invoked without sender")
			return nil
		}

		ctx := RequestContext(c)
		userID := c.Sender().ID

		greeting := "Welcome back!"
		_, err := g.FSM.GetState(ctx, userID)
		switch {
		case err == nil:
		case errors.Is(err, state.ErrStateNotFound):
			greeting = "Welcome to The Candy Heist!"
		default:
			g.log().Error("failed to fetch user state", slog.Int64("telegram_id", userID), slog.Any("error", err))
			return err
		}

		if err := g.FSM.SetState(ctx, userID, state.StateIdle, nil); err != nil {
			g.log().Error("failed to set initial user state", slog.Int64("telegram_id", userID), slog.Any("error", err))
			return err
		}

		text := fmt.Sprintf("%s\n\n%s", greeting, helpText)
		if c.Chat() != nil && c.Chat().Type == telebot.ChatPrivate {
			return c.Send(text, keyboard.MainMenu())
		}
		return c.Send(text)
	}
}

// Help lists the commands.
func (g *Game) Help() Handler {
	return func(c telebot.Context) error {
		return c.Send(helpText)
	}
}
