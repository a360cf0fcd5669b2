package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"livechat/pkg/interfaces"
	"livechat/pkg/types"
)

const defaultKeyPrefix = "livechat"

// redisRecord is the JSON stored per list element. Unlike the wire form
// it carries the sequence id.
type redisRecord struct {
	ID        int64  `json:"id"`
	Pseudo    string `json:"pseudo"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// RedisStore keeps history in a capped redis list.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention int
	logger    zerolog.Logger
	closed    atomic.Bool
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL, prefix string, retention int, logger *zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, prefix, retention, logger)
}

// NewRedisStoreFromClient wraps an existing client. The store owns it and
// closes it on Close.
func NewRedisStoreFromClient(client *redis.Client, prefix string, retention int, logger *zerolog.Logger) (*RedisStore, error) {
	if retention <= 0 {
		return nil, ErrInvalidRetention
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	s := &RedisStore{
		client:    client,
		prefix:    prefix,
		retention: retention,
		logger:    componentLogger(logger, DriverRedis),
	}
	s.logger.Info().Str("prefix", prefix).Int("retention", retention).Msg("redis store ready")
	return s, nil
}

func (s *RedisStore) messagesKey() string {
	return fmt.Sprintf("%s:messages", s.prefix)
}

func (s *RedisStore) sequenceKey() string {
	return fmt.Sprintf("%s:messages:seq", s.prefix)
}

// Append assigns the next sequence id, then pushes and trims atomically.
func (s *RedisStore) Append(ctx context.Context, msg *types.ChatMessage) error {
	if s.closed.Load() {
		return interfaces.ErrStoreClosed
	}

	id, err := s.client.Incr(ctx, s.sequenceKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate message id: %w", err)
	}

	data, err := json.Marshal(redisRecord{
		ID:        id,
		Pseudo:    msg.Pseudo,
		Message:   msg.Message,
		Timestamp: msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := s.messagesKey()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-s.retention), -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push message: %w", err)
	}
	msg.ID = id
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, limit int) ([]types.ChatMessage, error) {
	if s.closed.Load() {
		return nil, interfaces.ErrStoreClosed
	}
	limit = clampLimit(limit, s.retention)

	results, err := s.client.LRange(ctx, s.messagesKey(), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	messages := make([]types.ChatMessage, 0, len(results))
	for _, data := range results {
		var rec redisRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			s.logger.Warn().Err(err).Msg("skipping undecodable history entry")
			continue
		}
		messages = append(messages, types.ChatMessage{
			ID:        rec.ID,
			Pseudo:    rec.Pseudo,
			Message:   rec.Message,
			Timestamp: rec.Timestamp,
		})
	}
	return messages, nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if s.closed.Load() {
		return interfaces.ErrStoreClosed
	}
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}
