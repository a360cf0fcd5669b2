package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"livechat/pkg/database"
	"livechat/pkg/interfaces"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverGorm   = "gorm"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// DefaultRetention is the number of messages kept in history.
const DefaultRetention = 5

// Options selects and configures a MessageStore backend.
type Options struct {
	Driver    string
	Retention int

	// SQLite is used by the sqlite and gorm drivers.
	SQLite *database.Config

	RedisURL       string
	RedisKeyPrefix string
}

// Open builds the store selected by opts.Driver.
func Open(ctx context.Context, opts Options, logger *zerolog.Logger) (interfaces.MessageStore, error) {
	if opts.Retention <= 0 {
		return nil, ErrInvalidRetention
	}
	if opts.SQLite == nil {
		opts.SQLite = database.DefaultConfig()
	}

	switch strings.ToLower(opts.Driver) {
	case DriverSQLite, "":
		return NewSQLiteStore(opts.SQLite, opts.Retention, logger)
	case DriverGorm:
		return NewGormStore(opts.SQLite.DatabasePath, opts.Retention, logger)
	case DriverRedis:
		return NewRedisStore(ctx, opts.RedisURL, opts.RedisKeyPrefix, opts.Retention, logger)
	case DriverMemory:
		return NewMemoryStore(opts.Retention), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

func componentLogger(logger *zerolog.Logger, driver string) zerolog.Logger {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return l.With().Str("component", "store").Str("driver", driver).Logger()
}

// clampLimit maps a requested history size onto 1..retention.
func clampLimit(limit, retention int) int {
	if limit <= 0 || limit > retention {
		return retention
	}
	return limit
}

// ensureDir creates the parent directory of a sqlite database file.
func ensureDir(dbPath string) error {
	if dbPath == "" || dbPath == ":memory:" || strings.HasPrefix(dbPath, "file:") {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}
