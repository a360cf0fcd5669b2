package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection       = errors.New("connection cannot be nil")
	ErrDuplicateConnection = errors.New("connection id already registered")
)

// Handler-related errors
var (
	ErrInvalidConfig = errors.New("invalid websocket configuration")
	ErrNilRegistry   = errors.New("registry cannot be nil")
	ErrNilSink       = errors.New("event sink cannot be nil")
)
