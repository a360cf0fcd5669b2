package types

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// DefaultPseudo replaces a blank display name on join.
const DefaultPseudo = "Anonymous"

// Validate checks the invariants of a persisted entry.
func (m *ChatMessage) Validate(maxLength int) error {
	if strings.TrimSpace(m.Pseudo) == "" {
		return ErrEmptyPseudo
	}
	if IsBlank(m.Message) {
		return ErrEmptyMessage
	}
	if maxLength > 0 && utf8.RuneCountInString(m.Message) > maxLength {
		return ErrMessageTooLong
	}
	return nil
}

// NormalizePseudo trims the requested display name, falls back to
// DefaultPseudo when nothing is left and caps it at maxLength characters.
func NormalizePseudo(raw string, maxLength int) string {
	pseudo := strings.TrimSpace(raw)
	if pseudo == "" {
		return DefaultPseudo
	}
	return strings.TrimSpace(Truncate(pseudo, maxLength))
}

// Truncate cuts s to at most n characters. n <= 0 disables the cap.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// IsBlank reports whether s holds nothing but whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// IsInboundEvent reports whether name is an event a client may send.
func IsInboundEvent(name string) bool {
	switch name {
	case EventJoinChat, EventChatMessage, EventTyping, EventStopTyping:
		return true
	default:
		return false
	}
}

// DecodeEnvelope parses a client frame and rejects unknown events.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, ErrInvalidPayload
	}
	if !IsInboundEvent(env.Event) {
		return Envelope{}, ErrUnknownEvent
	}
	return env, nil
}

// DecodePayload unmarshals the envelope data into v. An absent payload
// leaves v at its zero value.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return ErrInvalidPayload
	}
	return nil
}
