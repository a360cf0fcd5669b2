package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"livechat/pkg/interfaces"
	"livechat/pkg/types"
)

// messageRecord is the gorm model for one history entry.
type messageRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Pseudo    string    `gorm:"size:64;not null"`
	Message   string    `gorm:"not null"`
	Timestamp string    `gorm:"size:32;not null"`
	CreatedAt time.Time `gorm:"index"`
}

func (messageRecord) TableName() string {
	return "chat_messages"
}

func (r messageRecord) toMessage() types.ChatMessage {
	return types.ChatMessage{
		ID:        r.ID,
		Pseudo:    r.Pseudo,
		Message:   r.Message,
		Timestamp: r.Timestamp,
	}
}

// GormStore persists history through gorm on sqlite.
type GormStore struct {
	db        *gorm.DB
	retention int
	logger    zerolog.Logger
	closed    atomic.Bool
}

// NewGormStore opens dsn with the gorm sqlite driver and migrates the
// message model.
func NewGormStore(dsn string, retention int, log *zerolog.Logger) (*GormStore, error) {
	if retention <= 0 {
		return nil, ErrInvalidRetention
	}
	if err := ensureDir(dsn); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	// one connection keeps ":memory:" databases coherent and serializes writes
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&messageRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s := &GormStore{
		db:        db,
		retention: retention,
		logger:    componentLogger(log, DriverGorm),
	}
	s.logger.Info().Str("dsn", dsn).Int("retention", retention).Msg("gorm store ready")
	return s, nil
}

func (s *GormStore) Append(ctx context.Context, msg *types.ChatMessage) error {
	if s.closed.Load() {
		return interfaces.ErrStoreClosed
	}

	rec := messageRecord{
		Pseudo:    msg.Pseudo,
		Message:   msg.Message,
		Timestamp: msg.Timestamp,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}

		var keep []int64
		if err := tx.Model(&messageRecord{}).Order("id DESC").Limit(s.retention).Pluck("id", &keep).Error; err != nil {
			return fmt.Errorf("failed to read retained ids: %w", err)
		}
		if len(keep) < s.retention {
			return nil
		}
		oldest := keep[len(keep)-1]
		if err := tx.Where("id < ?", oldest).Delete(&messageRecord{}).Error; err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	msg.ID = rec.ID
	return nil
}

func (s *GormStore) Recent(ctx context.Context, limit int) ([]types.ChatMessage, error) {
	if s.closed.Load() {
		return nil, interfaces.ErrStoreClosed
	}
	limit = clampLimit(limit, s.retention)

	var records []messageRecord
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find messages: %w", err)
	}

	messages := make([]types.ChatMessage, len(records))
	for i, rec := range records {
		messages[len(records)-1-i] = rec.toMessage()
	}
	return messages, nil
}

func (s *GormStore) HealthCheck(ctx context.Context) error {
	if s.closed.Load() {
		return interfaces.ErrStoreClosed
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&messageRecord{}).Count(&n).Error; err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
