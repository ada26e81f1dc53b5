package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the TOML configuration file structure
type TOMLConfig struct {
	Telegram TOMLTelegramConfig `toml:"telegram"`
	HTTP     TOMLHTTPConfig     `toml:"http"`
	Poll     TOMLPollConfig     `toml:"poll"`
	Join     TOMLJoinConfig     `toml:"join"`
	Sessions TOMLSessionsConfig `toml:"sessions"`
	Media    TOMLMediaConfig    `toml:"media"`
	Alert    TOMLAlertConfig    `toml:"alert"`
	DataDir  string             `toml:"data_dir"`
	DevMode  bool               `toml:"dev_mode"`
}

// TOMLTelegramConfig represents MTProto credentials in TOML
type TOMLTelegramConfig struct {
	APIID   int    `toml:"api_id"`
	APIHash string `toml:"api_hash"`
}

// TOMLHTTPConfig represents HTTP configuration in TOML
type TOMLHTTPConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	BearerToken string   `toml:"bearer_token"`
	CORSOrigins []string `toml:"cors_origins"`
}

// TOMLPollConfig represents poll loop configuration in TOML
type TOMLPollConfig struct {
	TickSec      float64 `toml:"tick_sec"`
	BatchMax     int     `toml:"batch_max"`
	IdleJitterMS int     `toml:"idle_jitter_ms"`
}

// TOMLJoinConfig represents join governor configuration in TOML
type TOMLJoinConfig struct {
	IntervalSec int `toml:"interval_sec"`
	JitterMS    int `toml:"jitter_ms"`
}

// TOMLSessionsConfig represents session registry configuration in TOML
type TOMLSessionsConfig struct {
	RescanSec      int `toml:"rescan_sec"`
	HealthcheckSec int `toml:"healthcheck_sec"`
}

// TOMLMediaConfig represents media configuration in TOML
type TOMLMediaConfig struct {
	Include *bool `toml:"include"`
	MaxMB   int   `toml:"max_mb"`
}

// TOMLAlertConfig represents alert sink configuration in TOML
type TOMLAlertConfig struct {
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
	TopicID  int    `toml:"topic_id"`
}

// ConfigPaths lists the paths to search for config files
var ConfigPaths = []string{
	"mirrord.toml",
	"config.toml",
	"./config/mirrord.toml",
	"/etc/mirrord/config.toml",
}

// LoadFromFile loads configuration from a TOML file, layered over defaults
func LoadFromFile(path string) (*Config, error) {
	var tomlCfg TOMLConfig

	if _, err := toml.DecodeFile(path, &tomlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := defaults()
	applyFile(cfg, &tomlCfg)
	return cfg, nil
}

// LoadWithFile loads configuration from a TOML file if one is found, then
// applies environment variable overrides on top.
func LoadWithFile() (*Config, error) {
	configPath := os.Getenv("MIRRORD_CONFIG")
	if configPath == "" {
		for _, path := range ConfigPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
	}

	if configPath == "" {
		return Load()
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyFile overrides the given config with values set in the TOML file
func applyFile(cfg *Config, tc *TOMLConfig) {
	if tc.Telegram.APIID != 0 {
		cfg.Telegram.APIID = tc.Telegram.APIID
	}
	if tc.Telegram.APIHash != "" {
		cfg.Telegram.APIHash = tc.Telegram.APIHash
	}

	if tc.HTTP.Host != "" {
		cfg.HTTP.Host = tc.HTTP.Host
	}
	if tc.HTTP.Port != 0 {
		cfg.HTTP.Port = tc.HTTP.Port
	}
	if tc.HTTP.BearerToken != "" {
		cfg.HTTP.BearerToken = tc.HTTP.BearerToken
	}
	if len(tc.HTTP.CORSOrigins) > 0 {
		cfg.HTTP.CORSOrigins = tc.HTTP.CORSOrigins
	}

	if tc.Poll.TickSec > 0 {
		cfg.Poll.Tick = time.Duration(tc.Poll.TickSec * float64(time.Second))
	}
	if tc.Poll.BatchMax > 0 {
		cfg.Poll.BatchMax = tc.Poll.BatchMax
	}
	if tc.Poll.IdleJitterMS > 0 {
		cfg.Poll.IdleJitter = time.Duration(tc.Poll.IdleJitterMS) * time.Millisecond
	}

	if tc.Join.IntervalSec > 0 {
		cfg.Join.Interval = time.Duration(tc.Join.IntervalSec) * time.Second
	}
	if tc.Join.JitterMS > 0 {
		cfg.Join.Jitter = time.Duration(tc.Join.JitterMS) * time.Millisecond
	}

	if tc.Sessions.RescanSec > 0 {
		cfg.Sessions.RescanInterval = time.Duration(tc.Sessions.RescanSec) * time.Second
	}
	if tc.Sessions.HealthcheckSec > 0 {
		cfg.Sessions.HealthInterval = time.Duration(tc.Sessions.HealthcheckSec) * time.Second
	}

	if tc.Media.Include != nil {
		cfg.Media.Include = *tc.Media.Include
	}
	if tc.Media.MaxMB > 0 {
		cfg.Media.MaxBytes = int64(tc.Media.MaxMB) * 1024 * 1024
	}

	if tc.Alert.BotToken != "" {
		cfg.Alert.BotToken = tc.Alert.BotToken
	}
	if tc.Alert.ChatID != "" {
		cfg.Alert.ChatID = tc.Alert.ChatID
	}
	if tc.Alert.TopicID != 0 {
		cfg.Alert.TopicID = tc.Alert.TopicID
	}

	if tc.DataDir != "" {
		cfg.DataDir = tc.DataDir
	}
	if tc.DevMode {
		cfg.DevMode = true
	}
}

// WriteExampleConfig writes an example configuration file
func WriteExampleConfig(path string) error {
	example := `# mirrord configuration
# Environment variables override these settings

[telegram]
api_id = 0
api_hash = ""

[http]
host = "0.0.0.0"
port = 8080
bearer_token = ""
cors_origins = ["*"]

[poll]
tick_sec = 1.5
batch_max = 50
idle_jitter_ms = 150

[join]
interval_sec = 180
jitter_ms = 2500

[sessions]
rescan_sec = 20
healthcheck_sec = 45

[media]
include = true
max_mb = 50

[alert]
bot_token = ""
chat_id = ""
topic_id = 0

data_dir = "./data"
dev_mode = false
`

	// Ensure directory exists
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	return os.WriteFile(path, []byte(example), 0o644)
}
