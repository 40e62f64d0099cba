package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type BotConfig struct {
	Token          string
	Prefix         string
	Owners         []int64
	LogChannelID   string
	Debug          bool
	Store          string
	DatabaseURL    string
	RedisURL       string
	MarketChannel  string
	HTTPAddr       string
	InviteTimeout  time.Duration
	ConfirmTimeout time.Duration
	ReconcileEvery time.Duration
}

type WatchConfig struct {
	APIBaseURL    string
	RedisURL      string
	MarketChannel string
}

// LoadDotEnv reads .env if present. Real environment variables win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func LoadBotFromEnv() (BotConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("GROWTUBE_HTTP_ADDR", ":8080")
	}

	token := strings.TrimSpace(os.Getenv("TOKEN"))
	if token == "" {
		token = strings.TrimSpace(os.Getenv("GROWTUBE_TOKEN"))
	}

	cfg := BotConfig{
		Token:          token,
		Prefix:         envDefault("GROWTUBE_PREFIX", "g!"),
		LogChannelID:   strings.TrimSpace(os.Getenv("GROWTUBE_LOG_CHANNEL")),
		Debug:          envBoolDefault("GROWTUBE_DEBUG", false),
		Store:          strings.ToLower(envDefault("GROWTUBE_STORE", StorePostgres)),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:       strings.TrimSpace(os.Getenv("REDIS_URL")),
		MarketChannel:  envDefault("GROWTUBE_MARKET_CHANNEL", "market"),
		HTTPAddr:       addr,
		InviteTimeout:  envDurationDefault("GROWTUBE_INVITE_TIMEOUT", 30*time.Second),
		ConfirmTimeout: envDurationDefault("GROWTUBE_CONFIRM_TIMEOUT", 60*time.Second),
		ReconcileEvery: envDurationDefault("GROWTUBE_RECONCILE_EVERY", time.Minute),
	}
	owners, err := parseIDs(os.Getenv("GROWTUBE_OWNERS"))
	if err != nil {
		return cfg, fmt.Errorf("GROWTUBE_OWNERS: %w", err)
	}
	cfg.Owners = owners

	if cfg.Token == "" {
		return cfg, fmt.Errorf("TOKEN is required")
	}
	switch cfg.Store {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreMemory:
	default:
		return cfg, fmt.Errorf("GROWTUBE_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, cfg.Store)
	}
	if cfg.ReconcileEvery < time.Second {
		return cfg, fmt.Errorf("GROWTUBE_RECONCILE_EVERY must be at least 1s")
	}
	return cfg, nil
}

func LoadWatchFromEnv() WatchConfig {
	return WatchConfig{
		APIBaseURL:    strings.TrimRight(envDefault("GROWTUBE_API_BASE_URL", "http://localhost:8080"), "/"),
		RedisURL:      envDefault("REDIS_URL", "redis://localhost:6379/0"),
		MarketChannel: envDefault("GROWTUBE_MARKET_CHANNEL", "market"),
	}
}

// DatabaseURLFromEnv is the subset of the bot config needed for schema
// management.
func DatabaseURLFromEnv() (string, error) {
	url := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if url == "" {
		return "", fmt.Errorf("DATABASE_URL is required")
	}
	return url, nil
}

func parseIDs(raw string) ([]int64, error) {
	var out []int64
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
