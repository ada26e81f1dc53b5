package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for mirrord
type Config struct {
	// Telegram application credentials (MTProto)
	Telegram TelegramConfig

	// HTTP admin API configuration
	HTTP HTTPConfig

	// Poll loop configuration
	Poll PollConfig

	// Join governor configuration
	Join JoinConfig

	// Session registry and health monitor configuration
	Sessions SessionsConfig

	// Media mirroring configuration
	Media MediaConfig

	// Alert sink configuration
	Alert AlertConfig

	// Data directory holding sessions/, sessions_pending/ and state.json
	DataDir string

	// Development mode
	DevMode bool
}

// TelegramConfig holds the MTProto application credentials
type TelegramConfig struct {
	APIID   int
	APIHash string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Host        string
	Port        int
	BearerToken string
	CORSOrigins []string
}

// PollConfig holds poll loop configuration
type PollConfig struct {
	// Tick is the poll loop period
	Tick time.Duration
	// BatchMax caps messages fetched per source per tick
	BatchMax int
	// IdleJitter is the random delay added to each tick
	IdleJitter time.Duration
}

// JoinConfig holds join governor configuration
type JoinConfig struct {
	// Interval is the minimum spacing between joins on one session
	Interval time.Duration
	// Jitter is the random delay added before each join
	Jitter time.Duration
}

// SessionsConfig holds session registry configuration
type SessionsConfig struct {
	RescanInterval time.Duration
	HealthInterval time.Duration
}

// MediaConfig holds media mirroring configuration
type MediaConfig struct {
	// Include enables media download and re-upload
	Include bool
	// MaxBytes caps the size of mirrored media; larger media degrades to text
	MaxBytes int64
}

// AlertConfig holds the outbound alert bot configuration.
// Alerts are disabled when BotToken or ChatID is empty.
type AlertConfig struct {
	BotToken string
	ChatID   string
	TopicID  int
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := defaults()
	applyEnv(cfg)
	return cfg, nil
}

// defaults returns the built-in configuration
func defaults() *Config {
	return &Config{
		Telegram: TelegramConfig{},
		HTTP: HTTPConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Poll: PollConfig{
			Tick:       1500 * time.Millisecond,
			BatchMax:   50,
			IdleJitter: 150 * time.Millisecond,
		},
		Join: JoinConfig{
			Interval: 180 * time.Second,
			Jitter:   2500 * time.Millisecond,
		},
		Sessions: SessionsConfig{
			RescanInterval: 20 * time.Second,
			HealthInterval: 45 * time.Second,
		},
		Media: MediaConfig{
			Include:  true,
			MaxBytes: 50 * 1024 * 1024,
		},
		DataDir: "./data",
	}
}

// applyEnv overrides the given config with any environment variables that are set
func applyEnv(cfg *Config) {
	cfg.Telegram.APIID = getEnvInt("API_ID", cfg.Telegram.APIID)
	cfg.Telegram.APIHash = getEnv("API_HASH", cfg.Telegram.APIHash)

	cfg.HTTP.Host = getEnv("BIND_HOST", cfg.HTTP.Host)
	cfg.HTTP.Port = getEnvInt("BIND_PORT", cfg.HTTP.Port)
	cfg.HTTP.BearerToken = getEnv("API_BEARER", cfg.HTTP.BearerToken)
	cfg.HTTP.CORSOrigins = getEnvSlice("CORS_ORIGINS", cfg.HTTP.CORSOrigins)

	cfg.Poll.Tick = getEnvSeconds("POLL_TICK_SEC", cfg.Poll.Tick)
	cfg.Poll.BatchMax = getEnvInt("BATCH_MAX", cfg.Poll.BatchMax)
	cfg.Poll.IdleJitter = getEnvMillis("IDLE_JITTER_MS", cfg.Poll.IdleJitter)

	cfg.Join.Interval = getEnvSeconds("JOIN_INTERVAL_SEC", cfg.Join.Interval)
	cfg.Join.Jitter = getEnvMillis("JOIN_JITTER_MS", cfg.Join.Jitter)

	cfg.Sessions.RescanInterval = getEnvSeconds("SESS_RESCAN_SEC", cfg.Sessions.RescanInterval)
	cfg.Sessions.HealthInterval = getEnvSeconds("HEALTHCHECK_INTERVAL_SEC", cfg.Sessions.HealthInterval)

	cfg.Media.Include = getEnvBool("INCLUDE_MEDIA", cfg.Media.Include)
	if mb, ok := lookupEnvInt("MEDIA_MAX_MB"); ok {
		cfg.Media.MaxBytes = int64(mb) * 1024 * 1024
	}

	cfg.Alert.BotToken = getEnv("TELEGRAM_ALERT_BOT_TOKEN", cfg.Alert.BotToken)
	cfg.Alert.ChatID = getEnv("TELEGRAM_ALERT_CHAT_ID", cfg.Alert.ChatID)
	cfg.Alert.TopicID = getEnvInt("TELEGRAM_ALERT_TOPIC_ID", cfg.Alert.TopicID)

	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.DevMode = getEnvBool("MIRRORD_DEV", cfg.DevMode)
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	if c.Telegram.APIID == 0 || c.Telegram.APIHash == "" {
		return fmt.Errorf("API_ID and API_HASH are required")
	}
	if c.Poll.Tick <= 0 {
		return fmt.Errorf("POLL_TICK_SEC must be positive, got %v", c.Poll.Tick)
	}
	if c.Poll.BatchMax < 1 {
		return fmt.Errorf("BATCH_MAX must be at least 1, got %d", c.Poll.BatchMax)
	}
	if c.Join.Interval <= 0 {
		return fmt.Errorf("JOIN_INTERVAL_SEC must be positive, got %v", c.Join.Interval)
	}
	if c.Sessions.RescanInterval <= 0 || c.Sessions.HealthInterval <= 0 {
		return fmt.Errorf("rescan and healthcheck intervals must be positive")
	}
	if c.Media.MaxBytes < 0 {
		return fmt.Errorf("MEDIA_MAX_MB must not be negative")
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("BIND_PORT out of range: %d", c.HTTP.Port)
	}
	return nil
}

// SessionsDir returns the directory holding authorized session files
func (c *Config) SessionsDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// PendingDir returns the directory holding in-flight login session files
func (c *Config) PendingDir() string {
	return filepath.Join(c.DataDir, "sessions_pending")
}

// StatePath returns the path of the persistent snapshot
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state.json")
}

// EnsureDirs creates the data directories if they do not exist
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.SessionsDir(), c.PendingDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, ok := lookupEnvInt(key); ok {
		return v
	}
	return defaultValue
}

func lookupEnvInt(key string) (int, bool) {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal, true
		}
	}
	return 0, false
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvSeconds parses a float number of seconds, e.g. POLL_TICK_SEC=1.5
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f > 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
