package handlers

import (
	"fmt"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/candy-heist/internal/ledger"
)

// Panel handles /candy: the player's stocking plus the game buttons. Sent as a reply, the panel
// also offers the targeted actions against that message's author.
func (g *Game) Panel() Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil {
			return nil
		}

		ctx := RequestContext(c)
		accounts := g.Resolver.Ledger()
		rec, err := accounts.Get(ctx, playerID(c.Sender().ID))
		if err != nil {
			return err
		}

		text := fmt.Sprintf("🍬 You have %d Candy Canes.", rec.Balance)
		if now := accounts.Now(); ledger.IsLocked(rec, now) {
			text += fmt.Sprintf("\n🔒 Stocking locked for %s.", rec.LockedUntil.Sub(now).Round(time.Minute))
		}
		if rec.NotifyOptOut {
			text += "\n🔕 Heist notices are off."
		}

		var targetID int64
		if tgt, err := replyTarget(c); err == nil && tgt.ID != c.Sender().ID {
			targetID = tgt.ID
			text += fmt.Sprintf("\n\nWhat do you do to %s?", tgt.Name)
		}

		return c.Send(text, g.Keyboard.Panel(targetID))
	}
}
