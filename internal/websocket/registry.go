package websocket

import (
	"sync"

	"github.com/rs/zerolog"

	"livechat/internal/metrics"
	"livechat/pkg/interfaces"
	"livechat/pkg/types"
)

// Registry tracks every live session by connection id and delivers
// coordinator output to them.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	logger      zerolog.Logger
}

func NewRegistry(logger *zerolog.Logger) *Registry {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Registry{
		connections: make(map[string]*Connection),
		logger:      l.With().Str("component", "websocket-registry").Logger(),
	}
}

// Register adds conn. Ids are unique per live session.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	r.connections[conn.ID()] = conn
	metrics.LiveConnections.Set(float64(len(r.connections)))
	return nil
}

// Unregister removes conn if it is still the registered instance for its
// id. Idempotent.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, ok := r.connections[conn.ID()]; !ok || registered != conn {
		return
	}
	delete(r.connections, conn.ID())
	metrics.LiveConnections.Set(float64(len(r.connections)))
}

// Get returns the concrete connection for id.
func (r *Registry) Get(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[connID]
	return conn, ok
}

func (r *Registry) Lookup(connID string) (interfaces.Connection, bool) {
	conn, ok := r.Get(connID)
	if !ok {
		return nil, false
	}
	return conn, true
}

func (r *Registry) Send(connID string, ev types.Event) error {
	conn, ok := r.Get(connID)
	if !ok {
		return interfaces.ErrConnectionNotFound
	}
	return conn.Send(ev)
}

// Broadcast encodes ev once and queues it on every live session. It
// returns the number of sessions that accepted the frame.
func (r *Registry) Broadcast(ev types.Event) int {
	data, err := ev.Encode()
	if err != nil {
		r.logger.Error().Err(err).Str("event", ev.Name).Msg("failed to encode broadcast")
		return 0
	}

	delivered := 0
	for _, conn := range r.snapshot() {
		if err := conn.sendRaw(data); err == nil {
			delivered++
		}
	}
	return delivered
}

// Disconnect closes the session for id. The read loop reports the
// disconnect once the socket is gone.
func (r *Registry) Disconnect(connID string) bool {
	conn, ok := r.Get(connID)
	if !ok {
		return false
	}
	if err := conn.CloseWithReason(ReasonServerDisconnect); err != nil {
		r.logger.Debug().Err(err).Str("conn_id", connID).Msg("close after disconnect request failed")
	}
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CloseAll closes every live session with reason.
func (r *Registry) CloseAll(reason string) {
	for _, conn := range r.snapshot() {
		_ = conn.CloseWithReason(reason)
	}
}

func (r *Registry) snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	return conns
}
