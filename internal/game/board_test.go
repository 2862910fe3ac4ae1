package game

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/candy-heist/internal/store"
	"github.com/Proton-105/candy-heist/pkg/config"
)

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.setBalance(t, "broke", 0)
	f.setBalance(t, "rich", 90)
	f.setBalance(t, "mid-b", 40)
	f.setBalance(t, "mid-a", 40)
	for i := 0; i < 12; i++ {
		f.setBalance(t, fmt.Sprintf("filler-%02d", i), int64(i+1))
	}

	board, err := f.resolver.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, board, DefaultLeaderboardSize)
	assert.Equal(t, "rich", board[0].UserID)
	assert.Equal(t, "mid-a", board[1].UserID)
	assert.Equal(t, "mid-b", board[2].UserID)
	for i := 1; i < len(board); i++ {
		assert.GreaterOrEqual(t, board[i-1].Balance, board[i].Balance)
	}
	for _, row := range board {
		assert.NotEqual(t, "broke", row.UserID)
	}

	short, err := f.resolver.Leaderboard(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, short, 2)
}

func TestLeaderboard_Empty(t *testing.T) {
	f := newFixture(t)

	board, err := f.resolver.Leaderboard(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, board)
}

func TestActivePlayers_Flags(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.lock(t, "locked")
	optOut := true
	_, err := f.store.Update(ctx, "quiet", store.Patch{NotifyOptOut: &optOut}.Apply)
	require.NoError(t, err)
	expired := testNow.Add(-time.Minute)
	_, err = f.store.Update(ctx, "expired", store.Patch{LockedUntil: &expired}.Apply)
	require.NoError(t, err)

	players, err := f.resolver.ActivePlayers(ctx, 0)
	require.NoError(t, err)
	require.Len(t, players, 3)

	byID := make(map[string]Standing, len(players))
	for _, p := range players {
		byID[p.UserID] = p
	}
	assert.True(t, byID["locked"].Locked)
	assert.False(t, byID["expired"].Locked)
	assert.True(t, byID["quiet"].NotifyOptOut)
	assert.False(t, byID["locked"].NotifyOptOut)
}

func TestToggleNotifications(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	optOut, err := f.resolver.ToggleNotifications(ctx, "u")
	require.NoError(t, err)
	assert.True(t, optOut)

	out, err := f.resolver.Resolve(ctx, Request{Action: ActionGift, ActorID: "a", TargetID: "u", Amount: 1})
	require.NoError(t, err)
	assert.Nil(t, out.Notify)

	optOut, err = f.resolver.ToggleNotifications(ctx, "u")
	require.NoError(t, err)
	assert.False(t, optOut)
}

func TestRulesFromConfig(t *testing.T) {
	rules := RulesFromConfig(config.GameConfig{})
	assert.Equal(t, DefaultRules(), rules)

	custom := RulesFromConfig(config.GameConfig{
		StarterBalance:     50,
		LockDuration:       time.Hour,
		HeistSuccessChance: 0.5,
		SnowballMin:        3,
		SnowballMax:        1,
	})
	assert.Equal(t, int64(50), custom.StarterBalance)
	assert.Equal(t, time.Hour, custom.LockDuration)
	assert.Equal(t, 0.5, custom.HeistSuccessChance)
	assert.Equal(t, DefaultHeistStealFraction, custom.HeistStealFraction)
	assert.Equal(t, int64(3), custom.SnowballMin)
	assert.Equal(t, int64(3), custom.SnowballMax)
}

func TestResolverWithRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.resolver = NewResolver(f.store, f.resolver.rotation, f.rnd,
		WithClock(func() time.Time { return testNow }),
		WithRules(Rules{LockDuration: 30 * time.Minute, HeistFailPenalty: 7}),
	)
	f.rnd.floats = []float64{0.99}

	out, err := f.resolver.Resolve(ctx, Request{Action: ActionHeist, ActorID: "a", TargetID: "b"})
	require.NoError(t, err)
	assert.Equal(t, KindFail, out.Kind)
	assert.Equal(t, int64(7), out.Amount)

	out, err = f.resolver.Resolve(ctx, Request{Action: ActionLock, ActorID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "lock line (30 mins)", out.Message)
}
