package handlers

import (
	telebot "gopkg.in/telebot.v3"
)

func boolLabel(value bool, trueLabel, falseLabel string) string {
	if value {
		return trueLabel
	}
	return falseLabel
}

// ToggleNotifications handles /dms and the panel's DM button.
func (g *Game) ToggleNotifications() Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil {
			return nil
		}

		optOut, err := g.Resolver.ToggleNotifications(RequestContext(c), playerID(c.Sender().ID))
		if err != nil {
			return err
		}

		statusText := boolLabel(optOut, "🔕 Heist notices disabled", "🔔 Heist notices enabled")
		if c.Callback() != nil {
			return respondCallback(c, statusText, false)
		}
		return c.Send(statusText)
	}
}
