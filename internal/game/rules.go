package game

import (
	"time"

	"github.com/Proton-105/candy-heist/internal/ledger"
	"github.com/Proton-105/candy-heist/internal/store"
	"github.com/Proton-105/candy-heist/pkg/config"
)

const (
	DefaultHeistSuccessChance = 0.70
	DefaultHeistStealFraction = 0.25
	DefaultHeistFailPenalty   = 5
	DefaultSnowballHitChance  = 0.50
	DefaultSnowballMin        = 2
	DefaultSnowballMax        = 5
	DefaultLeaderboardSize    = 10
	DefaultPlayersListSize    = 25
)

// Rules are the tunable numbers of the game.
type Rules struct {
	StarterBalance     int64
	LockDuration       time.Duration
	HeistSuccessChance float64
	HeistStealFraction float64
	HeistFailPenalty   int64
	SnowballHitChance  float64
	SnowballMin        int64
	SnowballMax        int64
	LeaderboardSize    int
}

// DefaultRules returns the classic Candy Heist numbers.
func DefaultRules() Rules {
	return Rules{
		StarterBalance:     store.DefaultStarterBalance,
		LockDuration:       ledger.DefaultLockDuration,
		HeistSuccessChance: DefaultHeistSuccessChance,
		HeistStealFraction: DefaultHeistStealFraction,
		HeistFailPenalty:   DefaultHeistFailPenalty,
		SnowballHitChance:  DefaultSnowballHitChance,
		SnowballMin:        DefaultSnowballMin,
		SnowballMax:        DefaultSnowballMax,
		LeaderboardSize:    DefaultLeaderboardSize,
	}
}

// RulesFromConfig overlays the configured values on DefaultRules. Zero values keep the default.
func RulesFromConfig(cfg config.GameConfig) Rules {
	return Rules{
		StarterBalance:     cfg.StarterBalance,
		LockDuration:       cfg.LockDuration,
		HeistSuccessChance: cfg.HeistSuccessChance,
		HeistStealFraction: cfg.HeistStealFraction,
		HeistFailPenalty:   cfg.HeistFailPenalty,
		SnowballHitChance:  cfg.SnowballHitChance,
		SnowballMin:        cfg.SnowballMin,
		SnowballMax:        cfg.SnowballMax,
		LeaderboardSize:    cfg.LeaderboardSize,
	}.withDefaults()
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.StarterBalance <= 0 {
		r.StarterBalance = d.StarterBalance
	}
	if r.LockDuration <= 0 {
		r.LockDuration = d.LockDuration
	}
	if r.HeistSuccessChance <= 0 {
		r.HeistSuccessChance = d.HeistSuccessChance
	}
	if r.HeistStealFraction <= 0 {
		r.HeistStealFraction = d.HeistStealFraction
	}
	if r.HeistFailPenalty <= 0 {
		r.HeistFailPenalty = d.HeistFailPenalty
	}
	if r.SnowballHitChance <= 0 {
		r.SnowballHitChance = d.SnowballHitChance
	}
	if r.SnowballMin <= 0 {
		r.SnowballMin = d.SnowballMin
	}
	if r.SnowballMax <= 0 {
		r.SnowballMax = d.SnowballMax
	}
	if r.SnowballMax < r.SnowballMin {
		r.SnowballMax = r.SnowballMin
	}
	if r.LeaderboardSize <= 0 {
		r.LeaderboardSize = d.LeaderboardSize
	}
	return r
}
