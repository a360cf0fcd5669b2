package chat

import (
	"errors"
	"time"

	"livechat/internal/ratelimit"
	"livechat/pkg/types"
)

// DefaultRateLimitNotice is the text sent with rate-limit-exceeded.
const DefaultRateLimitNotice = "You are sending too many messages. Please wait a few seconds."

// Config tunes the coordinator.
type Config struct {
	HistoryLimit     int
	MaxMessageLength int
	MaxPseudoLength  int
	RateLimit        int
	RateWindow       time.Duration
	TypingTimeout    time.Duration
	// StoreTimeout bounds each store call made from the event loop.
	StoreTimeout    time.Duration
	EventBuffer     int
	RateLimitNotice string
}

func DefaultConfig() Config {
	return Config{
		HistoryLimit:     5,
		MaxMessageLength: 500,
		MaxPseudoLength:  32,
		RateLimit:        ratelimit.DefaultLimit,
		RateWindow:       ratelimit.DefaultWindow,
		TypingTimeout:    5 * time.Second,
		StoreTimeout:     2 * time.Second,
		EventBuffer:      1000,
		RateLimitNotice:  DefaultRateLimitNotice,
	}
}

func (c Config) Validate() error {
	switch {
	case c.HistoryLimit <= 0:
		return errors.New("history limit must be greater than 0")
	case c.MaxMessageLength <= 0:
		return errors.New("max message length must be greater than 0")
	case c.MaxPseudoLength <= 0:
		return errors.New("max pseudo length must be greater than 0")
	case c.RateLimit <= 0:
		return errors.New("rate limit must be greater than 0")
	case c.RateWindow <= 0:
		return errors.New("rate window must be positive")
	case c.TypingTimeout <= 0:
		return errors.New("typing timeout must be positive")
	case c.StoreTimeout <= 0:
		return errors.New("store timeout must be positive")
	case c.EventBuffer <= 0:
		return errors.New("event buffer must be greater than 0")
	}
	return nil
}

// normalizePseudo applies the configured display name rules.
func (c Config) normalizePseudo(raw string) string {
	return types.NormalizePseudo(raw, c.MaxPseudoLength)
}
