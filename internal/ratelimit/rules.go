package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"github.com/Proton-105/candy-heist/pkg/config"
)

// ErrNoRule is returned when no limit is configured for an action.
var ErrNoRule = errors.New("ratelimit: no rule configured")

type rule struct {
	limit  int
	window time.Duration
	err    error
}

// Rules is the parsed rate limit configuration. Windows are parsed once; a malformed one is
// reported every time its rule is asked for.
type Rules struct {
	whitelist map[int64]struct{}
	perUser   *rule
	actions   map[string]rule
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	r := &Rules{
		whitelist: make(map[int64]struct{}, len(cfg.Whitelist)),
		actions:   make(map[string]rule, len(cfg.Actions)),
	}
	for _, id := range cfg.Whitelist {
		r.whitelist[id] = struct{}{}
	}
	if cfg.PerUser.Limit != 0 || cfg.PerUser.Window != "" {
		parsed := parseRule(cfg.PerUser)
		r.perUser = &parsed
	}
	for action, raw := range cfg.Actions {
		r.actions[action] = parseRule(raw)
	}
	return r
}

// IsWhitelisted returns true if the userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID int64) bool {
	_, ok := r.whitelist[userID]
	return ok
}

// GetActionLimit returns the limit and window for an interaction such as "heist".
func (r *Rules) GetActionLimit(action string) (int, time.Duration, error) {
	ar, ok := r.actions[action]
	if !ok {
		return 0, 0, ErrNoRule
	}
	return ar.limit, ar.window, ar.err
}

// GetPerUserLimit returns the budget shared by all of a user's interactions.
func (r *Rules) GetPerUserLimit() (int, time.Duration, error) {
	if r.perUser == nil {
		return 0, 0, ErrNoRule
	}
	return r.perUser.limit, r.perUser.window, r.perUser.err
}

func parseRule(raw config.RateLimitRule) rule {
	if raw.Window == "" {
		return rule{limit: raw.Limit, err: errors.New("window duration is not set")}
	}
	window, err := time.ParseDuration(raw.Window)
	if err != nil {
		return rule{err: fmt.Errorf("window %q: %w", raw.Window, err)}
	}
	return rule{limit: raw.Limit, window: window}
}
