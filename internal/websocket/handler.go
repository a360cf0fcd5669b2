package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livechat/pkg/types"
)

// Disconnect reasons reported to the sink.
const (
	ReasonServerDisconnect = "server namespace disconnect"
	ReasonClientDisconnect = "client namespace disconnect"
	ReasonPingTimeout      = "ping timeout"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonServerShutdown   = "server shutting down"
)

// EventSink receives the lifecycle and inbound events of every session.
// *chat.Coordinator satisfies it.
type EventSink interface {
	Connect(ctx context.Context, connID, remoteAddr string) error
	HandleEnvelope(ctx context.Context, connID string, env types.Envelope) error
	Disconnect(ctx context.Context, connID, reason string) error
}

// Config tunes the websocket transport.
type Config struct {
	PingInterval   time.Duration `json:"ping_interval"`
	PongWait       time.Duration `json:"pong_wait"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	SendBuffer     int           `json:"send_buffer"`
	MaxMessageSize int64         `json:"max_message_size"`
	// AllowedOrigins empty accepts every origin.
	AllowedOrigins []string `json:"allowed_origins"`
}

func DefaultConfig() Config {
	return Config{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendBuffer:     100,
		MaxMessageSize: 64 * 1024,
	}
}

func (c Config) Validate() error {
	if c.PongWait <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: pong wait and write timeout must be positive", ErrInvalidConfig)
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		return fmt.Errorf("%w: ping interval must be positive and shorter than pong wait", ErrInvalidConfig)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("%w: send buffer must be positive", ErrInvalidConfig)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidConfig)
	}
	return nil
}

// Handler upgrades HTTP requests to websocket sessions and pumps their
// frames into the sink.
type Handler struct {
	registry *Registry
	sink     EventSink
	cfg      Config
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewHandler(registry *Registry, sink EventSink, cfg Config, logger *zerolog.Logger) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if sink == nil {
		return nil, ErrNilSink
	}
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}

	h := &Handler{
		registry: registry,
		sink:     sink,
		cfg:      cfg,
		logger:   l.With().Str("component", "websocket").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h, nil
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection(ws, r.RemoteAddr, h.cfg, &h.logger)
	if err := h.registry.Register(conn); err != nil {
		h.logger.Error().Err(err).Msg("failed to register connection")
		_ = conn.Close()
		return
	}

	if err := h.sink.Connect(context.Background(), conn.ID(), conn.RemoteAddr()); err != nil {
		h.logger.Error().Err(err).Str("conn_id", conn.ID()).Msg("coordinator refused connection")
		h.registry.Unregister(conn)
		_ = conn.CloseWithReason(ReasonServerShutdown)
		return
	}

	go h.readPump(conn)
}

// readPump reads frames until the socket fails, then reports the
// disconnect exactly once.
func (h *Handler) readPump(conn *Connection) {
	reason := ReasonTransportClose
	defer func() {
		h.registry.Unregister(conn)
		_ = conn.Close()
		if r, ok := conn.serverCloseReason(); ok {
			reason = r
		}
		if err := h.sink.Disconnect(context.Background(), conn.ID(), reason); err != nil {
			h.logger.Debug().Err(err).Str("conn_id", conn.ID()).Msg("disconnect not delivered")
		}
	}()

	ws := conn.conn
	ws.SetReadLimit(h.cfg.MaxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait)); err != nil {
		reason = ReasonTransportError
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			reason = readErrorReason(err)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug().Err(err).Str("conn_id", conn.ID()).Msg("websocket read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		env, err := types.DecodeEnvelope(data)
		if err != nil {
			h.logger.Debug().Err(err).Str("conn_id", conn.ID()).Msg("dropping malformed frame")
			continue
		}
		if err := h.sink.HandleEnvelope(conn.ctx, conn.ID(), env); err != nil {
			h.logger.Debug().Err(err).Str("conn_id", conn.ID()).Str("event", env.Event).Msg("event rejected")
		}
	}
}

func readErrorReason(err error) string {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return ReasonClientDisconnect
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return ReasonTransportClose
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonPingTimeout
	}
	if errors.Is(err, net.ErrClosed) {
		return ReasonTransportClose
	}
	return ReasonTransportError
}
