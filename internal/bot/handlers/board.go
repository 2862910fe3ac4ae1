package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/candy-heist/internal/bot/keyboard"
	"github.com/Proton-105/candy-heist/internal/game"
)

// PlayersPerPage is the page size of the staff player list.
const PlayersPerPage = game.DefaultPlayersListSize

// Leaderboard handles /leaderboard and the panel's leaderboard button.
func (g *Game) Leaderboard() Handler {
	return func(c telebot.Context) error {
		ctx := RequestContext(c)

		standings, err := g.Resolver.Leaderboard(ctx, 0)
		if err != nil {
			return err
		}
		if len(standings) == 0 {
			return reply(c, "🏆 Nobody has any Candy Canes yet.")
		}

		names := g.names(ctx, standings)
		var b strings.Builder
		b.WriteString("🏆 Candy Heist leaderboard\n")
		for i, s := range standings {
			fmt.Fprintf(&b, "\n%d. %s: %d 🍬", i+1, names[s.UserID], s.Balance)
		}

		return reply(c, b.String())
	}
}

// Players handles "/players [page]" and its pager buttons. Staff only.
func (g *Game) Players() Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil {
			return nil
		}
		if g.IsAdmin == nil || !g.IsAdmin(c.Sender().ID) {
			if c.Callback() != nil {
				return respondCallback(c, "Staff only", true)
			}
			return c.Send("🎅 Only the elves running this game can see that.")
		}

		page := 1
		if cb := c.Callback(); cb != nil {
			if _, data, err := keyboard.DecodeCallback(cb.Data); err == nil {
				page, _ = strconv.Atoi(data)
			}
		} else if args := commandArgs(c); len(args) > 0 {
			page, _ = strconv.Atoi(args[0])
		}

		ctx := RequestContext(c)
		standings, err := g.Resolver.ActivePlayers(ctx, math.MaxInt32)
		if err != nil {
			return err
		}
		if len(standings) == 0 {
			return reply(c, "No active players.")
		}

		totalPages := keyboard.PageCount(len(standings), PlayersPerPage)
		page = min(max(page, 1), totalPages)
		first := (page - 1) * PlayersPerPage
		pageRows := standings[first:min(first+PlayersPerPage, len(standings))]

		names := g.names(ctx, pageRows)
		var b strings.Builder
		fmt.Fprintf(&b, "🎄 Active players (%d)\n", len(standings))
		for i, s := range pageRows {
			fmt.Fprintf(&b, "\n%d. %s [%s]: %d 🍬", first+i+1, names[s.UserID], s.UserID, s.Balance)
			if s.Locked {
				b.WriteString(" 🔒")
			}
			if s.NotifyOptOut {
				b.WriteString(" 🔕")
			}
		}

		markup := g.Keyboard.PlayersPager(page, totalPages)
		if c.Callback() != nil && c.Callback().Message != nil {
			_ = c.Respond()
			if markup == nil {
				return c.Edit(b.String())
			}
			return c.Edit(b.String(), markup)
		}
		if markup == nil {
			return c.Send(b.String())
		}
		return c.Send(b.String(), markup)
	}
}

// names maps player ids to display names, falling back to the id.
func (g *Game) names(ctx context.Context, standings []game.Standing) map[string]string {
	names := make(map[string]string, len(standings))
	ids := make([]int64, 0, len(standings))
	for _, s := range standings {
		names[s.UserID] = s.UserID
		if id, err := strconv.ParseInt(s.UserID, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}

	if g.Profiles == nil {
		return names
	}
	profiles, err := g.Profiles.GetMany(ctx, ids)
	if err != nil {
		g.log().WarnContext(ctx, "failed to load player names", slog.Any("error", err))
		return names
	}
	for id, profile := range profiles {
		names[playerID(id)] = profile.DisplayName()
	}
	return names
}
