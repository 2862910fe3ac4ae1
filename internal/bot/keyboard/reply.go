package keyboard

import (
	telebot "gopkg.in/telebot.v3"
)

// MainMenu builds the reply keyboard shown in private chats. Each button sends its command.
func MainMenu() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: false,
	}

	markup.Reply(
		markup.Row(markup.Text("/candy"), markup.Text("/lock")),
		markup.Row(markup.Text("/leaderboard"), markup.Text("/dms")),
	)

	return markup
}
