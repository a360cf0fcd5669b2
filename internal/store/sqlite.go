package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livechat/pkg/database"
	"livechat/pkg/interfaces"
	"livechat/pkg/types"
)

const (
	writeQueueSize = 100
	retryDelay     = 100 * time.Millisecond
)

// SQLiteStore persists history with database/sql on go-sqlite3. Reads run
// concurrently; every write goes through a single writer goroutine.
type SQLiteStore struct {
	db        *sql.DB
	retention int
	logger    zerolog.Logger

	writeChannel chan writeOperation
	shutdown     chan struct{}
	stopped      chan struct{}
	wg           sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type writeOperation struct {
	ctx       context.Context
	operation func(context.Context, *sql.DB) error
	result    chan error
}

// NewSQLiteStore opens the database, applies migrations and starts the
// writer.
func NewSQLiteStore(cfg *database.Config, retention int, logger *zerolog.Logger) (*SQLiteStore, error) {
	if retention <= 0 {
		return nil, ErrInvalidRetention
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sqlite config: %w", err)
	}
	if err := ensureDir(cfg.DatabasePath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := database.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	migrations := database.NewMigrationManager(db, cfg.MigrationsPath)
	if err := migrations.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := migrations.ValidateSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("invalid database schema: %w", err)
	}

	s := &SQLiteStore{
		db:           db,
		retention:    retention,
		logger:       componentLogger(logger, DriverSQLite),
		writeChannel: make(chan writeOperation, writeQueueSize),
		shutdown:     make(chan struct{}),
		stopped:      make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	s.logger.Info().Str("path", cfg.DatabasePath).Int("retention", retention).Msg("sqlite store ready")
	return s, nil
}

// writeLoop runs every write in one goroutine. A failed write is retried
// once unless its context is already done.
func (s *SQLiteStore) writeLoop() {
	defer s.wg.Done()
	defer close(s.stopped)

	for {
		select {
		case op := <-s.writeChannel:
			err := op.operation(op.ctx, s.db)
			if err != nil && op.ctx.Err() == nil {
				s.logger.Warn().Err(err).Dur("retry_in", retryDelay).Msg("write failed, retrying")
				select {
				case <-time.After(retryDelay):
					err = op.operation(op.ctx, s.db)
				case <-op.ctx.Done():
					err = op.ctx.Err()
				}
				if err != nil {
					s.logger.Error().Err(err).Msg("write failed after retry")
				}
			}
			op.result <- err

		case <-s.shutdown:
			s.logger.Debug().Msg("write loop shutting down")
			return
		}
	}
}

func (s *SQLiteStore) executeWrite(ctx context.Context, operation func(context.Context, *sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{ctx: ctx, operation: operation, result: result}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrWriteTimeout, ctx.Err())
	case <-s.shutdown:
		return interfaces.ErrStoreClosed
	}

	select {
	case err := <-result:
		return err
	case <-s.stopped:
		return interfaces.ErrStoreClosed
	}
}

// Append inserts msg, assigns its id and trims the table to the newest
// retention rows in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, msg *types.ChatMessage) error {
	return s.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`INSERT INTO messages (pseudo, message, timestamp) VALUES (?, ?, ?)`,
			msg.Pseudo, msg.Message, msg.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read message id: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM messages WHERE id NOT IN (SELECT id FROM messages ORDER BY id DESC LIMIT ?)`,
			s.retention,
		)
		if err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit message: %w", err)
		}
		msg.ID = id
		return nil
	})
}

// Recent returns the newest messages in insertion order.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]types.ChatMessage, error) {
	if s.isClosed() {
		return nil, interfaces.ErrStoreClosed
	}
	limit = clampLimit(limit, s.retention)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pseudo, message, timestamp FROM (
			SELECT id, pseudo, message, timestamp FROM messages ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]types.ChatMessage, 0, limit)
	for rows.Next() {
		var m types.ChatMessage
		if err := rows.Scan(&m.ID, &m.Pseudo, &m.Message, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.isClosed() {
		return interfaces.ErrStoreClosed
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close stops the writer and closes the database. Safe to call twice.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
