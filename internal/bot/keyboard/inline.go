package keyboard

import (
	"fmt"

	telebot "gopkg.in/telebot.v3"
)

// InlineButton is a button routed to the callback handler registered under Unique, with Data as
// its payload.
type InlineButton struct {
	Text   string
	Unique string
	Data   string
}

// InlineKeyboardBuilder collects rows of buttons.
type InlineKeyboardBuilder struct {
	rows [][]InlineButton
}

// NewInlineKeyboard starts an empty inline keyboard.
func NewInlineKeyboard() *InlineKeyboardBuilder {
	return &InlineKeyboardBuilder{}
}

// AddRow appends a row. Empty rows are skipped.
func (b *InlineKeyboardBuilder) AddRow(buttons ...InlineButton) *InlineKeyboardBuilder {
	if len(buttons) > 0 {
		b.rows = append(b.rows, append([]InlineButton(nil), buttons...))
	}
	return b
}

// Build renders the rows. telebot's own Unique is left empty because it would prefix the data
// with "\f"; the router decodes our "unique:data" form directly.
func (b *InlineKeyboardBuilder) Build() (*telebot.ReplyMarkup, error) {
	markup := &telebot.ReplyMarkup{InlineKeyboard: make([][]telebot.InlineButton, 0, len(b.rows))}
	for _, row := range b.rows {
		rendered := make([]telebot.InlineButton, 0, len(row))
		for _, btn := range row {
			data, err := EncodeCallback(btn.Unique, btn.Data)
			if err != nil {
				return nil, fmt.Errorf("button %q: %w", btn.Text, err)
			}
			rendered = append(rendered, telebot.InlineButton{Text: btn.Text, Data: data})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, rendered)
	}
	return markup, nil
}
