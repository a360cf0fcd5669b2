package types

import (
	"encoding/json"
	"time"
)

// Inbound event names sent by chat clients.
const (
	EventJoinChat    = "join-chat"
	EventChatMessage = "chat-message"
	EventTyping      = "typing"
	EventStopTyping  = "stop-typing"
	EventDisconnect  = "disconnect"
)

// Outbound event names sent by the server.
const (
	EventChatHistory       = "chat-history"
	EventUserJoined        = "user-joined"
	EventUserCount         = "user-count"
	EventTypingUsers       = "typing-users"
	EventNewMessage        = "new-message"
	EventRateLimitExceeded = "rate-limit-exceeded"
)

// TimestampLayout is the ISO-8601 layout used for chat message timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ChatMessage is one persisted chat entry. It is never mutated after creation.
// ID is the store-assigned sequence number and is not part of the wire format.
type ChatMessage struct {
	ID        int64  `json:"-"`
	Pseudo    string `json:"pseudo"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// NewChatMessage stamps a message with the given time in UTC.
func NewChatMessage(pseudo, message string, at time.Time) *ChatMessage {
	return &ChatMessage{
		Pseudo:    pseudo,
		Message:   message,
		Timestamp: FormatTimestamp(at),
	}
}

// FormatTimestamp renders t the way chat clients expect it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Envelope is the frame exchanged over the websocket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound event before encoding.
type Event struct {
	Name    string
	Payload any
}

// Encode marshals the event into a wire envelope.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: e.Name, Data: data})
}

// Inbound payloads.
type (
	JoinChatPayload struct {
		Pseudo string `json:"pseudo"`
	}

	ChatMessagePayload struct {
		Message string `json:"message"`
	}

	DisconnectPayload struct {
		Reason string `json:"reason"`
	}
)

// Outbound payloads.
type (
	ChatHistoryPayload struct {
		Messages []ChatMessage `json:"messages"`
	}

	UserJoinedPayload struct {
		Pseudo string `json:"pseudo"`
	}

	UserCountPayload struct {
		Count int `json:"count"`
	}

	TypingUsersPayload struct {
		Users []string `json:"users"`
	}

	RateLimitExceededPayload struct {
		Message    string `json:"message"`
		RetryAfter int    `json:"retryAfter"`
	}
)
