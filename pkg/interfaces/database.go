package interfaces

import (
	"context"

	"livechat/pkg/types"
)

// MessageStore persists the bounded chat history.
type MessageStore interface {
	// Append persists msg and trims the history to the retention limit,
	// keeping the entries with the highest sequence ids. The store assigns
	// msg.ID.
	Append(ctx context.Context, msg *types.ChatMessage) error

	// Recent returns up to limit of the newest entries, oldest first.
	Recent(ctx context.Context, limit int) ([]types.ChatMessage, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Filter redacts banned words from chat text.
type Filter interface {
	Filter(text string) string
	IsProfane(text string) bool
}
