package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livechat/internal/metrics"
	"livechat/pkg/types"
)

const closeWriteDeadline = 2 * time.Second

// Connection wraps one websocket session. All data frames are written by a
// single goroutine; Send never blocks on a slow peer.
type Connection struct {
	id         string
	remoteAddr string
	conn       *websocket.Conn
	writeCh    chan []byte
	cfg        Config
	logger     zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	// closeReason is set when the server closes the session on purpose.
	closeReason atomic.Value
}

// NewConnection assigns the session a fresh id and starts its writer.
func NewConnection(conn *websocket.Conn, remoteAddr string, cfg Config, logger *zerolog.Logger) *Connection {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:         uuid.NewString(),
		remoteAddr: remoteAddr,
		conn:       conn,
		writeCh:    make(chan []byte, cfg.SendBuffer),
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
	}
	c.logger = l.With().Str("conn_id", c.id).Logger()

	go c.writeLoop()
	return c
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// writeLoop owns every data frame and the keepalive pings.
func (c *Connection) writeLoop() {
	var tick <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.fail(err)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.fail(err)
				return
			}

		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.fail(err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) fail(err error) {
	c.logger.Debug().Err(err).Msg("write failed, closing connection")
	_ = c.conn.Close()
	c.cancel()
}

// Send encodes ev and queues it. A full buffer drops the frame.
func (c *Connection) Send(ev types.Event) error {
	data, err := ev.Encode()
	if err != nil {
		return ErrInvalidJSON
	}
	return c.sendRaw(data)
}

func (c *Connection) sendRaw(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		metrics.DroppedFrames.Inc()
		c.logger.Warn().Msg("send buffer full, dropping frame")
		return ErrSendBufferFull
	}
}

// Close sends a close frame and tears the session down. Safe to call
// more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteDeadline))
		err = c.conn.Close()
	})
	return err
}

// CloseWithReason records why the server ended the session, then closes it.
func (c *Connection) CloseWithReason(reason string) error {
	c.closeReason.CompareAndSwap(nil, reason)
	return c.Close()
}

func (c *Connection) serverCloseReason() (string, bool) {
	reason, ok := c.closeReason.Load().(string)
	return reason, ok
}
