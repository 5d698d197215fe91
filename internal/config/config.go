package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Telegram
	BotToken string
	Notifier string // telegram | log

	// Storage
	StoreDriver   string // json | sqlite | redis | memory
	DataDir       string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// Upstreams
	BestInSlotBaseURL string
	MagicEdenBaseURL  string
	MagicEdenAPIKey   string
	SatoseaBaseURL    string
	FetchTimeout      time.Duration
	FetchRetries      int
	UpstreamRPS       float64
	FetchWorkers      int
	PnLMaxPages       int
	BacklogPages      int

	// Loops
	PollInterval     time.Duration
	MintPollInterval time.Duration
	MintThresholds   []float64
	MintWindow       float64

	// Admin API
	AdminAddr string

	// Bitcoin
	BitcoinNetwork string

	// Observability
	AppEnv    string
	LogLevel  string
	LogFile   string
	SentryDSN string
}

func Load() *Config {
	cfg := &Config{
		// Telegram
		BotToken: getEnv("BOT_TOKEN", ""),
		Notifier: strings.ToLower(getEnv("NOTIFIER", "telegram")),

		// Storage
		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", "json")),
		DataDir:       getEnv("DATA_DIR", "./data"),
		DBPath:        getEnv("DB_PATH", "./data/tracker.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPrefix:   getEnv("REDIS_PREFIX", "ordtracker:"),

		// Upstreams
		BestInSlotBaseURL: strings.TrimSuffix(getEnv("BESTINSLOT_BASE_URL", "https://v2api.bestinslot.xyz"), "/"),
		MagicEdenBaseURL:  strings.TrimSuffix(getEnv("MAGICEDEN_BASE_URL", "https://api-mainnet.magiceden.dev"), "/"),
		MagicEdenAPIKey:   getEnv("MAGICEDEN_API_KEY", ""),
		SatoseaBaseURL:    strings.TrimSuffix(getEnv("SATOSEA_BASE_URL", "https://api-runes.satosea.xyz"), "/"),
		FetchTimeout:      getEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchRetries:      getEnvInt("FETCH_RETRIES", 2),
		UpstreamRPS:       getEnvFloat("UPSTREAM_RPS", 4),
		FetchWorkers:      getEnvInt("FETCH_WORKERS", 4),
		PnLMaxPages:       getEnvInt("PNL_MAX_PAGES", 10),
		BacklogPages:      getEnvInt("BACKLOG_PAGES", 5),

		// Loops
		PollInterval:     getEnvDuration("POLL_INTERVAL", 5*time.Second),
		MintPollInterval: getEnvDuration("MINT_POLL_INTERVAL", 5*time.Second),
		MintThresholds:   getEnvFloats("MINT_THRESHOLDS", []float64{30, 50, 80, 90}),
		MintWindow:       getEnvFloat("MINT_WINDOW", 0.9),

		// Admin API
		AdminAddr: getEnv("ADMIN_ADDR", "127.0.0.1:8080"),

		// Bitcoin
		BitcoinNetwork: strings.ToLower(getEnv("BITCOIN_NETWORK", "mainnet")),

		// Observability
		AppEnv:    getEnv("APP_ENV", "production"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFile:   getEnv("LOG_FILE", ""),
		SentryDSN: getEnv("SENTRY_DSN", ""),
	}

	return cfg
}

// Validate checks that the configuration can start the bot.
func (c *Config) Validate() error {
	switch c.Notifier {
	case "telegram":
		if c.BotToken == "" {
			return fmt.Errorf("BOT_TOKEN is required when NOTIFIER=telegram")
		}
	case "log":
	default:
		return fmt.Errorf("NOTIFIER must be telegram or log, got %q", c.Notifier)
	}

	switch c.StoreDriver {
	case "json", "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be json, sqlite, redis or memory, got %q", c.StoreDriver)
	}

	if c.PollInterval <= 0 || c.MintPollInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.FetchWorkers < 1 {
		return fmt.Errorf("FETCH_WORKERS must be at least 1")
	}
	if c.UpstreamRPS <= 0 {
		return fmt.Errorf("UPSTREAM_RPS must be positive")
	}
	if c.MintWindow <= 0 {
		return fmt.Errorf("MINT_WINDOW must be positive")
	}
	if len(c.MintThresholds) == 0 {
		return fmt.Errorf("MINT_THRESHOLDS must list at least one percentage")
	}

	return nil
}

// MaskedBotToken hides most of the bot token for logging.
func (c *Config) MaskedBotToken() string {
	s := c.BotToken
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("5s") or a bare number of seconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultVal
}

func getEnvFloats(key string, defaultVal []float64) []float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	var out []float64
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if f, err := strconv.ParseFloat(part, 64); err == nil {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
