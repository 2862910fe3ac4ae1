package handlers

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"
)

// Cancel resets user state and returns the user to the main menu.
func (g *Game) Cancel() Handler {
	return func(c telebot.Context) error {
		if c == nil || c.Sender() == nil {
			g.log().Warn("cancel handler invoked without sender context")
			return nil
		}

		ctx := RequestContext(c)
		userID := c.Sender().ID

		if err := g.FSM.ClearState(ctx, userID); err != nil {
			g.log().Error("failed to clear user state", slog.Int64("user_id", userID), slog.Any("error", err))
			return err
		}

		if c.Callback() != nil {
			_ = respondCallback(c, "Cancelled", false)
			if msg := c.Callback().Message; msg != nil {
				if err := c.Delete(); err != nil {
					g.log().Debug("failed to remove prompt", slog.Int64("user_id", userID), slog.Any("error", err))
				}
			}
			return nil
		}

		return c.Send("Operation cancelled.")
	}
}
