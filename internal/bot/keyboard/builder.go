// Package keyboard renders the bot's inline and reply keyboards.
package keyboard

import (
	"log/slog"
	"strconv"

	telebot "gopkg.in/telebot.v3"
)

// Callback uniques. Targeted actions carry "<action>:<targetID>" as data.
const (
	CallbackAction  = "act"
	CallbackLock    = "lock"
	CallbackBoard   = "board"
	CallbackDMs     = "dms"
	CallbackPlayers = "players"
	CallbackAmount  = "amt"
	CallbackCancel  = "cancel"
)

// GiftAmounts are the quick picks offered after choosing a gift recipient.
var GiftAmounts = []int64{1, 5, 10, 25}

// Builder creates the game keyboards.
type Builder struct {
	log *slog.Logger
}

// NewBuilder returns a new Builder instance.
func NewBuilder(log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{log: log}
}

// Panel builds the game panel. With a target it offers the targeted actions against that player.
func (b *Builder) Panel(targetID int64) *telebot.ReplyMarkup {
	kb := NewInlineKeyboard()
	if targetID != 0 {
		target := strconv.FormatInt(targetID, 10)
		kb.AddRow(
			InlineButton{Text: "Gift 🎁", Unique: CallbackAction, Data: "gift:" + target},
			InlineButton{Text: "Heist 💰", Unique: CallbackAction, Data: "heist:" + target},
			InlineButton{Text: "Snowball ❄️", Unique: CallbackAction, Data: "snowball:" + target},
		)
	}
	kb.AddRow(
		InlineButton{Text: "Lock 🔒", Unique: CallbackLock},
		InlineButton{Text: "Leaderboard 🏆", Unique: CallbackBoard},
	).AddRow(
		InlineButton{Text: "DMs on/off 🔔", Unique: CallbackDMs},
	)

	return b.build(kb)
}

// AmountButtons builds quick amount selection buttons for the gift flow.
func (b *Builder) AmountButtons() *telebot.ReplyMarkup {
	row := make([]InlineButton, 0, len(GiftAmounts))
	for _, amount := range GiftAmounts {
		value := strconv.FormatInt(amount, 10)
		row = append(row, InlineButton{Text: value + " 🍬", Unique: CallbackAmount, Data: value})
	}

	kb := NewInlineKeyboard().
		AddRow(row...).
		AddRow(InlineButton{Text: "Cancel ❌", Unique: CallbackCancel})
	return b.build(kb)
}

// CancelButton builds a single cancel button.
func (b *Builder) CancelButton() *telebot.ReplyMarkup {
	return b.build(NewInlineKeyboard().AddRow(InlineButton{Text: "Cancel ❌", Unique: CallbackCancel}))
}

// DMToggle is the single button attached to direct notices.
func (b *Builder) DMToggle() *telebot.ReplyMarkup {
	return b.build(NewInlineKeyboard().AddRow(InlineButton{Text: "DMs: On/Off 🔔", Unique: CallbackDMs}))
}

// PlayersPager builds navigation for the staff player list.
func (b *Builder) PlayersPager(page, totalPages int) *telebot.ReplyMarkup {
	if totalPages <= 1 {
		return nil
	}
	return b.build(NewInlineKeyboard().AddRow(PaginationButtons(CallbackPlayers, page, totalPages)...))
}

func (b *Builder) build(kb *InlineKeyboardBuilder) *telebot.ReplyMarkup {
	markup, err := kb.Build()
	if err != nil {
		// every payload here is a short constant or an int64, so this is a programming error
		b.log.Error("failed to build keyboard", slog.Any("error", err))
		return &telebot.ReplyMarkup{}
	}
	return markup
}
