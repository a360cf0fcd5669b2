package interfaces

import "livechat/pkg/types"

// Connection is one live transport session.
type Connection interface {
	// ID is unique among live sessions.
	ID() string

	// Send queues an event for this connection only. It must not block the
	// caller on a slow peer.
	Send(ev types.Event) error

	// Close terminates the session. Safe to call more than once.
	Close() error

	RemoteAddr() string
}

// Transport delivers coordinator output to live connections.
type Transport interface {
	// Lookup resolves a connection id to its live session.
	Lookup(connID string) (Connection, bool)

	// Send delivers an event to a single connection.
	Send(connID string, ev types.Event) error

	// Broadcast delivers an event to every live connection and reports how
	// many sessions it was queued for.
	Broadcast(ev types.Event) int

	// Disconnect force-closes a connection. It returns false when the id is
	// not live anymore.
	Disconnect(connID string) bool

	// Count is the number of open sessions, joined or not.
	Count() int
}
