package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livechat/internal/metrics"
	"livechat/internal/presence"
	"livechat/internal/ratelimit"
	"livechat/pkg/interfaces"
	"livechat/pkg/types"
)

const logPreviewLength = 50

// Coordinator owns all chat state: presence, typing, rate windows and the
// path from an inbound message to the store and every live connection.
// A single goroutine applies events one at a time.
type Coordinator struct {
	cfg       Config
	transport interfaces.Transport
	store     interfaces.MessageStore
	filter    interfaces.Filter
	logger    zerolog.Logger
	now       func() time.Time
	scheduler Scheduler

	events chan any

	// loop state
	sessions    map[string]*session
	typingOrder []string
	presence    *presence.Registry
	limiter     *ratelimit.Limiter

	running  bool
	shutdown chan struct{}
	stopped  chan struct{}
	mu       sync.RWMutex
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithScheduler replaces time.AfterFunc for typing expiry.
func WithScheduler(s Scheduler) Option {
	return func(c *Coordinator) { c.scheduler = s }
}

// NewCoordinator wires a coordinator. It does not process events until
// Start is called.
func NewCoordinator(cfg Config, transport interfaces.Transport, store interfaces.MessageStore,
	filter interfaces.Filter, logger *zerolog.Logger, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chat config: %w", err)
	}
	switch {
	case transport == nil:
		return nil, ErrMissingTransport
	case store == nil:
		return nil, ErrMissingStore
	case filter == nil:
		return nil, ErrMissingFilter
	}

	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}

	c := &Coordinator{
		cfg:       cfg,
		transport: transport,
		store:     store,
		filter:    filter,
		logger:    l.With().Str("component", "coordinator").Logger(),
		now:       time.Now,
		scheduler: realScheduler{},
		events:    make(chan any, cfg.EventBuffer),
		sessions:  make(map[string]*session),
		presence:  presence.NewRegistry(),
		limiter:   ratelimit.New(cfg.RateLimit, cfg.RateWindow),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start launches the event loop. It stops when ctx is done or Stop is
// called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrCoordinatorAlreadyRunning
	}
	c.running = true
	c.shutdown = make(chan struct{})
	c.stopped = make(chan struct{})

	c.logger.Info().Msg("starting chat coordinator")
	go c.run(ctx, c.shutdown, c.stopped)
	return nil
}

// Stop ends the event loop and waits for it to exit. Pending typing timers
// are cancelled.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrCoordinatorNotRunning
	}
	c.running = false
	shutdown, stopped := c.shutdown, c.stopped
	c.mu.Unlock()

	c.logger.Info().Msg("stopping chat coordinator")
	close(shutdown)
	<-stopped
	return nil
}

// Connect registers a new transport session.
func (c *Coordinator) Connect(ctx context.Context, connID, remoteAddr string) error {
	return c.submit(ctx, connectEvent{connID: connID, remoteAddr: remoteAddr})
}

// Join binds connID to a display name.
func (c *Coordinator) Join(ctx context.Context, connID, pseudo string) error {
	return c.submit(ctx, joinEvent{connID: connID, pseudo: pseudo})
}

// Message submits chat text from connID.
func (c *Coordinator) Message(ctx context.Context, connID, text string) error {
	return c.submit(ctx, messageEvent{connID: connID, text: text})
}

func (c *Coordinator) Typing(ctx context.Context, connID string) error {
	return c.submit(ctx, typingEvent{connID: connID})
}

func (c *Coordinator) StopTyping(ctx context.Context, connID string) error {
	return c.submit(ctx, stopTypingEvent{connID: connID})
}

// Disconnect reports that the transport session ended. Repeated calls for
// the same id are no-ops.
func (c *Coordinator) Disconnect(ctx context.Context, connID, reason string) error {
	return c.submit(ctx, disconnectEvent{connID: connID, reason: reason})
}

// Stats returns a snapshot taken inside the event loop, after every event
// submitted before the call.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	req := statsRequest{reply: make(chan Stats, 1)}
	if err := c.submit(ctx, req); err != nil {
		return Stats{}, err
	}

	c.mu.RLock()
	stopped := c.stopped
	c.mu.RUnlock()

	select {
	case s := <-req.reply:
		return s, nil
	case <-stopped:
		return Stats{}, ErrCoordinatorNotRunning
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// HandleEnvelope decodes a client frame and submits the matching event.
func (c *Coordinator) HandleEnvelope(ctx context.Context, connID string, env types.Envelope) error {
	switch env.Event {
	case types.EventJoinChat:
		var p types.JoinChatPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return c.Join(ctx, connID, p.Pseudo)
	case types.EventChatMessage:
		var p types.ChatMessagePayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		return c.Message(ctx, connID, p.Message)
	case types.EventTyping:
		return c.Typing(ctx, connID)
	case types.EventStopTyping:
		return c.StopTyping(ctx, connID)
	default:
		return fmt.Errorf("%w: %q", types.ErrUnknownEvent, env.Event)
	}
}

func (c *Coordinator) submit(ctx context.Context, ev any) error {
	c.mu.RLock()
	running, stopped := c.running, c.stopped
	c.mu.RUnlock()
	if !running {
		return ErrCoordinatorNotRunning
	}

	select {
	case c.events <- ev:
		return nil
	case <-stopped:
		return ErrCoordinatorNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, shutdown <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	defer c.cancelTimers()

	for {
		select {
		case ev := <-c.events:
			c.dispatch(ctx, ev)

		case <-shutdown:
			c.logger.Info().Msg("coordinator shutdown requested")
			return

		case <-ctx.Done():
			c.logger.Info().Msg("coordinator context cancelled")
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			return
		}
	}
}

func (c *Coordinator) dispatch(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case connectEvent:
		c.handleConnect(e)
	case joinEvent:
		c.handleJoin(ctx, e)
	case messageEvent:
		c.handleMessage(ctx, e)
	case typingEvent:
		c.handleTyping(e)
	case stopTypingEvent:
		c.handleStopTyping(e)
	case disconnectEvent:
		c.handleDisconnect(e)
	case typingExpiredEvent:
		c.handleTypingExpired(e)
	case statsRequest:
		e.reply <- c.snapshot()
	default:
		c.logger.Error().Str("type", fmt.Sprintf("%T", ev)).Msg("unexpected event")
	}
}

func (c *Coordinator) handleConnect(e connectEvent) {
	if _, exists := c.sessions[e.connID]; exists {
		c.logger.Warn().Str("conn_id", e.connID).Msg("connection already registered")
		return
	}
	c.sessions[e.connID] = &session{
		id:          e.connID,
		remoteAddr:  e.remoteAddr,
		connectedAt: c.now(),
		state:       stateConnected,
	}
	c.logger.Info().Str("conn_id", e.connID).Str("remote_addr", e.remoteAddr).Msg("client connected")
}

func (c *Coordinator) handleJoin(ctx context.Context, e joinEvent) {
	s, ok := c.sessions[e.connID]
	if !ok {
		c.logger.Warn().Str("conn_id", e.connID).Msg("join from unknown connection ignored")
		return
	}

	pseudo := c.cfg.normalizePseudo(e.pseudo)
	res := c.presence.Join(e.connID, pseudo)
	if res.Evicted != "" {
		c.evict(res.Evicted, pseudo)
	}

	s.pseudo = pseudo
	s.state = stateJoined
	if res.PreviousName != "" && s.typing {
		c.broadcastTyping()
	}
	metrics.JoinedUsers.Set(float64(c.presence.Count()))

	c.logger.Info().
		Str("conn_id", e.connID).
		Str("pseudo", pseudo).
		Str("previous_pseudo", res.PreviousName).
		Msg("user joined chat")

	c.send(e.connID, types.EventChatHistory, types.ChatHistoryPayload{Messages: c.history(ctx)})
	c.broadcast(types.EventUserCount, types.UserCountPayload{Count: c.presence.Count()})
	c.broadcast(types.EventUserJoined, types.UserJoinedPayload{Pseudo: pseudo})
}

// evict closes the connection that held pseudo before. Its presence
// mapping is already gone; the transport close is a no-op when the peer
// left on its own.
func (c *Coordinator) evict(connID, pseudo string) {
	metrics.Evictions.Inc()
	if old, ok := c.sessions[connID]; ok {
		c.closeSession(old)
	}
	closed := c.transport.Disconnect(connID)
	c.logger.Info().
		Str("conn_id", connID).
		Str("pseudo", pseudo).
		Bool("transport_closed", closed).
		Msg("previous connection evicted")
}

func (c *Coordinator) handleMessage(ctx context.Context, e messageEvent) {
	s, ok := c.sessions[e.connID]
	if !ok || s.state != stateJoined {
		c.logger.Debug().Str("conn_id", e.connID).Msg("message from connection that has not joined ignored")
		return
	}

	now := c.now()
	if !c.limiter.TryAdmit(e.connID, now) {
		retryAfter := c.limiter.RetryAfter(e.connID, now)
		metrics.MessagesRateLimited.Inc()
		c.logger.Warn().
			Str("conn_id", e.connID).
			Str("pseudo", s.pseudo).
			Int("retry_after", retryAfter).
			Msg("rate limit exceeded")
		c.send(e.connID, types.EventRateLimitExceeded, types.RateLimitExceededPayload{
			Message:    c.cfg.RateLimitNotice,
			RetryAfter: retryAfter,
		})
		return
	}

	if types.IsBlank(e.text) {
		return
	}

	text := types.Truncate(e.text, c.cfg.MaxMessageLength)
	filtered := c.filter.Filter(text)
	if filtered != text {
		metrics.MessagesFiltered.Inc()
		c.logger.Info().
			Str("conn_id", e.connID).
			Str("pseudo", s.pseudo).
			Str("original", types.Truncate(text, logPreviewLength)).
			Str("filtered", types.Truncate(filtered, logPreviewLength)).
			Msg("message filtered")
	} else {
		c.logger.Debug().
			Str("conn_id", e.connID).
			Str("pseudo", s.pseudo).
			Str("message", types.Truncate(text, logPreviewLength)).
			Msg("chat message")
	}

	msg := types.NewChatMessage(s.pseudo, filtered, now)
	if err := msg.Validate(c.cfg.MaxMessageLength); err != nil {
		c.logger.Error().Err(err).Str("conn_id", e.connID).Msg("dropping invalid message")
		return
	}

	c.persist(ctx, msg)

	c.broadcast(types.EventNewMessage, *msg)
	metrics.MessagesAccepted.Inc()

	if c.clearTyping(s) {
		c.broadcastTyping()
	}
}

func (c *Coordinator) handleTyping(e typingEvent) {
	s, ok := c.sessions[e.connID]
	if !ok || s.state != stateJoined {
		return
	}

	if !s.typing {
		s.typing = true
		c.typingOrder = append(c.typingOrder, s.id)
		c.broadcastTyping()
	}

	s.cancelTyping()
	connID, gen := s.id, s.typingGen
	s.typingTimer = c.scheduler.AfterFunc(c.cfg.TypingTimeout, func() {
		// the loop may be gone by the time the timer fires
		_ = c.submit(context.Background(), typingExpiredEvent{connID: connID, gen: gen})
	})
}

func (c *Coordinator) handleStopTyping(e stopTypingEvent) {
	s, ok := c.sessions[e.connID]
	if !ok {
		return
	}
	if c.clearTyping(s) {
		c.broadcastTyping()
	}
}

func (c *Coordinator) handleTypingExpired(e typingExpiredEvent) {
	s, ok := c.sessions[e.connID]
	if !ok || s.typingGen != e.gen {
		return
	}
	s.typingTimer = nil
	if c.clearTyping(s) {
		c.logger.Debug().Str("conn_id", s.id).Str("pseudo", s.pseudo).Msg("typing expired")
		c.broadcastTyping()
	}
}

func (c *Coordinator) handleDisconnect(e disconnectEvent) {
	s, ok := c.sessions[e.connID]
	if !ok {
		c.logger.Debug().Str("conn_id", e.connID).Str("reason", e.reason).Msg("disconnect for closed connection ignored")
		return
	}

	pseudo := s.pseudo
	c.closeSession(s)

	c.logger.Info().
		Str("conn_id", e.connID).
		Str("pseudo", pseudo).
		Str("remote_addr", s.remoteAddr).
		Str("reason", e.reason).
		Dur("duration", c.now().Sub(s.connectedAt)).
		Msg("client disconnected")
}

// closeSession clears everything the coordinator holds for s and moves it
// to Closed. Typing and presence changes are broadcast.
func (c *Coordinator) closeSession(s *session) {
	if c.clearTyping(s) {
		c.broadcastTyping()
	}

	if _, removed := c.presence.Leave(s.id); removed {
		metrics.JoinedUsers.Set(float64(c.presence.Count()))
		c.broadcast(types.EventUserCount, types.UserCountPayload{Count: c.presence.Count()})
	}

	c.limiter.Forget(s.id)
	s.state = stateClosed
	delete(c.sessions, s.id)
}

// clearTyping removes s from the typing set and cancels its timer. It
// reports whether membership changed.
func (c *Coordinator) clearTyping(s *session) bool {
	s.cancelTyping()
	if !s.typing {
		return false
	}
	s.typing = false
	for i, id := range c.typingOrder {
		if id == s.id {
			c.typingOrder = append(c.typingOrder[:i], c.typingOrder[i+1:]...)
			break
		}
	}
	return true
}

func (c *Coordinator) typingUsers() []string {
	users := make([]string, 0, len(c.typingOrder))
	for _, id := range c.typingOrder {
		if s, ok := c.sessions[id]; ok {
			users = append(users, s.pseudo)
		}
	}
	return users
}

func (c *Coordinator) broadcastTyping() {
	c.broadcast(types.EventTypingUsers, types.TypingUsersPayload{Users: c.typingUsers()})
}

func (c *Coordinator) history(ctx context.Context) []types.ChatMessage {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	defer cancel()

	msgs, err := c.store.Recent(ctx, c.cfg.HistoryLimit)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("recent").Inc()
		c.logger.Error().Err(err).Msg("failed to load chat history")
		return []types.ChatMessage{}
	}
	if msgs == nil {
		msgs = []types.ChatMessage{}
	}
	return msgs
}

func (c *Coordinator) persist(ctx context.Context, msg *types.ChatMessage) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	defer cancel()

	if err := c.store.Append(ctx, msg); err != nil {
		metrics.StoreErrors.WithLabelValues("append").Inc()
		c.logger.Error().Err(err).Str("pseudo", msg.Pseudo).Msg("failed to save message")
	}
}

func (c *Coordinator) send(connID, name string, payload any) {
	if err := c.transport.Send(connID, types.Event{Name: name, Payload: payload}); err != nil {
		c.logger.Debug().Err(err).Str("conn_id", connID).Str("event", name).Msg("send failed")
	}
}

func (c *Coordinator) broadcast(name string, payload any) {
	n := c.transport.Broadcast(types.Event{Name: name, Payload: payload})
	c.logger.Debug().Str("event", name).Int("recipients", n).Msg("broadcast")
}

func (c *Coordinator) snapshot() Stats {
	return Stats{
		JoinedUsers:     c.presence.Count(),
		LiveConnections: c.transport.Count(),
		Sessions:        len(c.sessions),
		TypingUsers:     c.typingUsers(),
		Pseudos:         c.presence.Pseudos(),
	}
}

func (c *Coordinator) cancelTimers() {
	for _, s := range c.sessions {
		s.cancelTyping()
	}
}
