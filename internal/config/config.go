// Package config loads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Addr           string `env:"LOBBY_ADDR" envDefault:":8080"`
	LogLevel       string `env:"LOBBY_LOG_LEVEL" envDefault:"info"`
	Dev            bool   `env:"LOBBY_DEV" envDefault:"false"`
	LedgerCapacity int    `env:"LOBBY_LEDGER_CAPACITY" envDefault:"50"`
	InboxSize      int    `env:"LOBBY_INBOX_SIZE" envDefault:"64"`
	SignalBuffer   int    `env:"LOBBY_SIGNAL_BUFFER" envDefault:"32"`
	JournalBuffer  int    `env:"LOBBY_JOURNAL_BUFFER" envDefault:"128"`
	DatabaseURL    string `env:"LOBBY_DATABASE_URL"`
}

// Load reads the given .env files (missing files are fine), then the process
// environment, and validates the result.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var err error
	if strings.TrimSpace(c.Addr) == "" {
		err = multierr.Append(err, errors.New("LOBBY_ADDR must not be empty"))
	}
	if _, lerr := zapcore.ParseLevel(c.LogLevel); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("LOBBY_LOG_LEVEL: %w", lerr))
	}
	if c.LedgerCapacity < 0 {
		err = multierr.Append(err, fmt.Errorf("LOBBY_LEDGER_CAPACITY must be >= 0, got %d", c.LedgerCapacity))
	}
	if c.InboxSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("LOBBY_INBOX_SIZE must be > 0, got %d", c.InboxSize))
	}
	if c.SignalBuffer <= 0 {
		err = multierr.Append(err, fmt.Errorf("LOBBY_SIGNAL_BUFFER must be > 0, got %d", c.SignalBuffer))
	}
	if c.JournalBuffer <= 0 {
		err = multierr.Append(err, fmt.Errorf("LOBBY_JOURNAL_BUFFER must be > 0, got %d", c.JournalBuffer))
	}
	return err
}
