package keyboard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/candy-heist/internal/bot/keyboard"
)

func TestBuilder_DMToggle(t *testing.T) {
	markup := keyboard.NewBuilder(nil).DMToggle()

	require.Len(t, markup.InlineKeyboard, 1)
	require.Len(t, markup.InlineKeyboard[0], 1)
	btn := markup.InlineKeyboard[0][0]
	assert.Contains(t, btn.Text, "DMs")

	unique, data, err := keyboard.DecodeCallback(btn.Data)
	require.NoError(t, err)
	assert.Equal(t, keyboard.CallbackDMs, unique)
	assert.Empty(t, data)
}
