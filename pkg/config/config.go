package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the Candy Heist bot.
type Config struct {
	AppEnv    string          `mapstructure:"app_env"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Bot       BotConfig       `mapstructure:"bot"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Game      GameConfig      `mapstructure:"game"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	AddSource  bool   `mapstructure:"add_source"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Environment string  `mapstructure:"environment"`
}

type BotConfig struct {
	Token    string        `mapstructure:"token"`
	Mode     string        `mapstructure:"mode" validate:"omitempty,oneof=polling webhook"`
	Timeout  time.Duration `mapstructure:"timeout"`
	AdminIDs []int64       `mapstructure:"admin_ids"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	WebhookAddr     string        `mapstructure:"webhook_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// StoreConfig selects the ledger backend.
type StoreConfig struct {
	Backend     string `mapstructure:"backend" validate:"required,oneof=file redis postgres"`
	Path        string `mapstructure:"path"`
	MaxAttempts int    `mapstructure:"max_attempts" validate:"gte=0"`
}

// RedisConfig connects the shared Redis client. Redis is used when Enabled is set or when the
// store or rate limiter backend is "redis"; it then also holds FSM state, processed update keys
// and player profiles.
type RedisConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr" validate:"required"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db" validate:"gte=0"`
	PoolSize        int           `mapstructure:"pool_size" validate:"gte=0"`
	MinIdleConns    int           `mapstructure:"min_idle_conns" validate:"gte=0"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// GameConfig tunes the interaction rules. Zero values fall back to the built-in defaults.
type GameConfig struct {
	BanterPath         string        `mapstructure:"banter_path"`
	StarterBalance     int64         `mapstructure:"starter_balance" validate:"gte=0"`
	LockDuration       time.Duration `mapstructure:"lock_duration" validate:"gte=0"`
	HeistSuccessChance float64       `mapstructure:"heist_success_chance" validate:"gte=0,lte=1"`
	HeistStealFraction float64       `mapstructure:"heist_steal_fraction" validate:"gte=0,lte=1"`
	HeistFailPenalty   int64         `mapstructure:"heist_fail_penalty" validate:"gte=0"`
	SnowballHitChance  float64       `mapstructure:"snowball_hit_chance" validate:"gte=0,lte=1"`
	SnowballMin        int64         `mapstructure:"snowball_min" validate:"gte=0"`
	SnowballMax        int64         `mapstructure:"snowball_max" validate:"gtefield=SnowballMin"`
	LeaderboardSize    int           `mapstructure:"leaderboard_size" validate:"gte=0"`
}

type RateLimitConfig struct {
	Enabled   bool                     `mapstructure:"enabled"`
	Backend   string                   `mapstructure:"backend" validate:"omitempty,oneof=memory redis"`
	PerUser   RateLimitRule            `mapstructure:"per_user"`
	Actions   map[string]RateLimitRule `mapstructure:"actions"`
	Whitelist []int64                  `mapstructure:"whitelist"`
}

type RateLimitRule struct {
	Limit  int    `mapstructure:"limit" validate:"gte=0"`
	Window string `mapstructure:"window"`
}

// GetDBConnectionString returns PostgreSQL DSN based on config values.
func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.DBName,
		c.Postgres.SSLMode,
	)
}

// UsesRedis reports whether any component needs the Redis client.
func (c *Config) UsesRedis() bool {
	return c.Redis.Enabled || c.Store.Backend == "redis" || (c.RateLimit.Enabled && c.RateLimit.Backend == "redis")
}

// IsAdmin reports whether the Telegram user may use staff commands.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Bot.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
