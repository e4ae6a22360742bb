package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// Session storage backends.
const (
	BackendSQLite  = "sqlite"
	BackendKeyring = "keyring"
)

// ProviderConfig holds the settings for the remote mailbox provider.
type ProviderConfig struct {
	// BaseURL is the root URL of the provider REST API.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds every HTTP request made to the provider.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// SessionConfig controls where the active session is persisted.
type SessionConfig struct {
	// Backend is either "sqlite" or "keyring".
	Backend string `mapstructure:"backend" yaml:"backend"`

	// DBPath is the SQLite database file used by the sqlite backend.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// PollingConfig controls inbox polling.
type PollingConfig struct {
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`

	// CooldownSec is how long polling stays paused after the provider
	// rate limits a request.
	CooldownSec int `mapstructure:"cooldown_sec" yaml:"cooldown_sec"`
}

// QRConfig points at the external QR image service.
type QRConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Size    int    `mapstructure:"size" yaml:"size"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	File  string `mapstructure:"file" yaml:"file"`
	Level string `mapstructure:"level" yaml:"level"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Polling  PollingConfig  `mapstructure:"polling" yaml:"polling"`
	QR       QRConfig       `mapstructure:"qr" yaml:"qr"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// RequestTimeout returns the per-request provider timeout.
func (c AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSec) * time.Second
}

// PollInterval returns the regular inbox polling interval.
func (c AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Polling.IntervalSec) * time.Second
}

// Cooldown returns the pause applied after a rate-limited poll.
func (c AppConfig) Cooldown() time.Duration {
	return time.Duration(c.Polling.CooldownSec) * time.Second
}

// envOverrides mirrors the subset of settings that can be overridden
// from the environment. Empty values leave the file settings untouched.
type envOverrides struct {
	BaseURL     string `env:"TEMPMAIL_API_URL"`
	Backend     string `env:"TEMPMAIL_SESSION_BACKEND"`
	DBPath      string `env:"TEMPMAIL_DB_PATH,expand"`
	IntervalSec int    `env:"TEMPMAIL_POLL_INTERVAL_SEC"`
	LogFile     string `env:"TEMPMAIL_LOG_FILE,expand"`
	LogLevel    string `env:"TEMPMAIL_LOG_LEVEL"`
}

// ConfigDir returns ~/.config/tempmail, or the working directory when
// the home directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "tempmail")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/tempmail/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dir := ConfigDir()
	return &AppConfig{
		Provider: ProviderConfig{
			BaseURL:    "https://api.mail.tm",
			TimeoutSec: 30,
		},
		Session: SessionConfig{
			Backend: BackendSQLite,
			DBPath:  filepath.Join(dir, "tempmail.db"),
		},
		Polling: PollingConfig{
			IntervalSec: 10,
			CooldownSec: 30,
		},
		QR: QRConfig{
			BaseURL: "https://api.qrserver.com/v1/create-qr-code/",
			Size:    250,
		},
		Log: LogConfig{
			File:  filepath.Join(dir, "tempmail.log"),
			Level: "info",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper
// and applies TEMPMAIL_* environment overrides on top. If the file does
// not exist, the defaults are used.
func LoadConfig(path string) (*AppConfig, error) {
	def := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("provider.base_url", def.Provider.BaseURL)
	v.SetDefault("provider.timeout_sec", def.Provider.TimeoutSec)
	v.SetDefault("session.backend", def.Session.Backend)
	v.SetDefault("session.db_path", def.Session.DBPath)
	v.SetDefault("polling.interval_sec", def.Polling.IntervalSec)
	v.SetDefault("polling.cooldown_sec", def.Polling.CooldownSec)
	v.SetDefault("qr.base_url", def.QR.BaseURL)
	v.SetDefault("qr.size", def.QR.Size)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("log.level", def.Log.Level)

	cfg := def
	if err := v.ReadInConfig(); err != nil {
		_, missing := err.(*os.PathError)
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			missing = true
		}
		if !missing {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// applyEnv overlays non-empty TEMPMAIL_* variables onto cfg.
func applyEnv(cfg *AppConfig) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	if o.BaseURL != "" {
		cfg.Provider.BaseURL = o.BaseURL
	}
	if o.Backend != "" {
		cfg.Session.Backend = o.Backend
	}
	if o.DBPath != "" {
		cfg.Session.DBPath = o.DBPath
	}
	if o.IntervalSec > 0 {
		cfg.Polling.IntervalSec = o.IntervalSec
	}
	if o.LogFile != "" {
		cfg.Log.File = o.LogFile
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	return nil
}

func (c *AppConfig) validate() error {
	switch c.Session.Backend {
	case BackendSQLite, BackendKeyring:
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is empty")
	}
	if c.Polling.IntervalSec <= 0 {
		c.Polling.IntervalSec = 10
	}
	if c.Polling.CooldownSec <= 0 {
		c.Polling.CooldownSec = 30
	}
	if c.Provider.TimeoutSec <= 0 {
		c.Provider.TimeoutSec = 30
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("provider", cfg.Provider)
	v.Set("session", cfg.Session)
	v.Set("polling", cfg.Polling)
	v.Set("qr", cfg.QR)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
