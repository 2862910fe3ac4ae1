package game

import (
	"context"
	"sort"

	"github.com/Proton-105/candy-heist/internal/ledger"
)

// Standing is one row of the leaderboard or the admin player list.
type Standing struct {
	UserID       string
	Balance      int64
	Locked       bool
	NotifyOptOut bool
}

// Leaderboard returns the players holding candy, richest first. limit <= 0 uses the configured size.
func (r *Resolver) Leaderboard(ctx context.Context, limit int) ([]Standing, error) {
	if limit <= 0 {
		limit = r.rules.LeaderboardSize
	}
	return r.standings(ctx, limit)
}

// ActivePlayers is the staff view: like Leaderboard but longer, with lock and DM flags filled in.
func (r *Resolver) ActivePlayers(ctx context.Context, limit int) ([]Standing, error) {
	if limit <= 0 {
		limit = DefaultPlayersListSize
	}
	return r.standings(ctx, limit)
}

func (r *Resolver) standings(ctx context.Context, limit int) ([]Standing, error) {
	users, err := r.store.Users(ctx)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	now := r.now()
	list := make([]Standing, 0, len(users))
	for id, rec := range users {
		if rec.Balance <= 0 {
			continue
		}
		list = append(list, Standing{
			UserID:       id,
			Balance:      rec.Balance,
			Locked:       ledger.IsLocked(rec, now),
			NotifyOptOut: rec.NotifyOptOut,
		})
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].Balance != list[j].Balance {
			return list[i].Balance > list[j].Balance
		}
		return list[i].UserID < list[j].UserID
	})

	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// ToggleNotifications flips the user's DM opt-out and returns the new value.
func (r *Resolver) ToggleNotifications(ctx context.Context, userID string) (bool, error) {
	optOut, err := r.accounts.ToggleNotifications(ctx, userID)
	if err != nil {
		return false, wrapStoreError(err)
	}
	return optOut, nil
}
