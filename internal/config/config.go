// Package config loads server and historian settings. Values come from built-in
// defaults, then an optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// WinLength mirrors game.WinLength; the board must be able to hold a winning line.
const WinLength = 5

type HistorianConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Inactivity    time.Duration `yaml:"inactivity"`
}

type Config struct {
	Env            string   `yaml:"env"`
	Addr           string   `yaml:"addr"`
	LogLevel       string   `yaml:"log_level"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	DatabaseURL   string `yaml:"database_url"`
	RunMigrations bool   `yaml:"run_migrations"`

	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	ActionQueue string `yaml:"action_queue"`

	// TokenExpire is a duration string; "never" or "0" issues tokens without expiry.
	TokenExpire    string `yaml:"token_expire"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PublicKeyPath  string `yaml:"public_key_path"`

	BoardSize           int  `yaml:"board_size"`
	ForfeitOnDisconnect bool `yaml:"forfeit_on_disconnect"`
	// AbandonAfter finishes a live game whose room stayed empty this long.
	AbandonAfter time.Duration `yaml:"abandon_after"`

	SendBuffer   int           `yaml:"send_buffer"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	Historian HistorianConfig `yaml:"historian"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Env:           "development",
		Addr:          ":8080",
		LogLevel:      "info",
		RunMigrations: true,
		RedisDB:       0,
		ActionQueue:   "gomoku:actions",
		TokenExpire:   "72h",
		BoardSize:     15,
		AbandonAfter:  2 * time.Minute,
		SendBuffer:    16,
		PingInterval:  30 * time.Second,
		WriteTimeout:  5 * time.Second,
		Historian: HistorianConfig{
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
			Inactivity:    10 * time.Minute,
		},
	}
}

// Load builds the configuration. path may be empty, in which case GOMOKU_CONFIG is
// consulted; a missing file is only an error when a path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("GOMOKU_CONFIG")
		explicit = path != ""
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("ENV", &c.Env)
	str("ADDR", &c.Addr)
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		c.Addr = ":" + port
	}
	str("LOG_LEVEL", &c.LogLevel)
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}

	str("DATABASE_URL", &c.DatabaseURL)
	boolean("RUN_MIGRATIONS", &c.RunMigrations)

	str("REDIS_ADDR", &c.RedisAddr)
	integer("REDIS_DB", &c.RedisDB)
	str("ACTION_QUEUE", &c.ActionQueue)

	str("TOKEN_EXPIRE_TIME", &c.TokenExpire)
	str("JWT_PRIVATE_KEY_PATH", &c.PrivateKeyPath)
	str("JWT_PUBLIC_KEY_PATH", &c.PublicKeyPath)

	integer("BOARD_SIZE", &c.BoardSize)
	boolean("FORFEIT_ON_DISCONNECT", &c.ForfeitOnDisconnect)
	duration("ABANDON_AFTER", &c.AbandonAfter)

	integer("WS_SEND_BUFFER", &c.SendBuffer)
	duration("WS_PING_INTERVAL", &c.PingInterval)
	duration("WS_WRITE_TIMEOUT", &c.WriteTimeout)

	integer("HISTORIAN_BATCH_SIZE", &c.Historian.BatchSize)
	duration("HISTORIAN_FLUSH_INTERVAL", &c.Historian.FlushInterval)
	duration("HISTORIAN_INACTIVITY", &c.Historian.Inactivity)

	return errors.Join(errs...)
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.BoardSize < WinLength {
		errs = append(errs, fmt.Errorf("board_size must be at least %d, got %d", WinLength, c.BoardSize))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer))
	}
	if c.AbandonAfter <= 0 {
		errs = append(errs, fmt.Errorf("abandon_after must be positive, got %s", c.AbandonAfter))
	}
	if c.PingInterval <= 0 || c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("ping_interval and write_timeout must be positive"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if _, err := c.TokenTTL(); err != nil {
		errs = append(errs, fmt.Errorf("token_expire: %w", err))
	}
	if c.Historian.BatchSize <= 0 || c.Historian.FlushInterval <= 0 {
		errs = append(errs, errors.New("historian batch_size and flush_interval must be positive"))
	}
	if c.ActionQueue == "" {
		errs = append(errs, errors.New("action_queue must not be empty"))
	}
	return errors.Join(errs...)
}

// TokenTTL parses TokenExpire. Zero means tokens never expire.
func (c *Config) TokenTTL() (time.Duration, error) {
	switch c.TokenExpire {
	case "", "never", "0":
		return 0, nil
	}
	d, err := time.ParseDuration(c.TokenExpire)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", d)
	}
	return d, nil
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// NewLogger creates the process logger: JSON in production, text otherwise.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if c.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
