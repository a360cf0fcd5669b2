package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"livechat/internal/api"
	"livechat/internal/chat"
	"livechat/internal/config"
	"livechat/internal/filter"
	"livechat/internal/store"
	"livechat/internal/websocket"
	"livechat/pkg/interfaces"
)

// Application wires every component of the chat server.
// Build order: store, registry, filter, coordinator, websocket handler,
// API, HTTP server.
type Application struct {
	config      *config.Config
	store       interfaces.MessageStore
	registry    *websocket.Registry
	coordinator *chat.Coordinator
	apiServer   *api.Server
	httpServer  *http.Server
	logger      zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	serveErr chan error
}

func NewApplication(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}

	st, err := store.Open(ctx, cfg.StoreOptions(), &l)
	if err != nil {
		return nil, fmt.Errorf("failed to open message store: %w", err)
	}

	registry := websocket.NewRegistry(&l)
	wordFilter := filter.NewDefault(cfg.Chat.BannedWords, &l)

	coordinator, err := chat.NewCoordinator(cfg.ChatConfig(), registry, st, wordFilter, &l)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	wsHandler, err := websocket.NewHandler(registry, coordinator, cfg.WebSocketConfig(), &l)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create websocket handler: %w", err)
	}

	apiServer := api.NewServer(st, coordinator, wsHandler, api.Options{
		HistoryLimit:   cfg.Chat.HistoryLimit,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, &l)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		store:       st,
		registry:    registry,
		coordinator: coordinator,
		apiServer:   apiServer,
		httpServer:  httpServer,
		logger:      l.With().Str("component", "app").Logger(),
	}, nil
}

// Start runs the coordinator and begins serving HTTP. It returns once the
// listener is bound.
func (app *Application) Start(ctx context.Context) error {
	// the coordinator outlives ctx so Stop can drain it after HTTP
	if err := app.coordinator.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}

	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.coordinator.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}

	app.mu.Lock()
	app.listener = ln
	app.serveErr = make(chan error, 1)
	app.mu.Unlock()

	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.serveErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(app.serveErr)
	}()

	app.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("store", app.config.Store.Driver).
		Msg("livechat started")
	return nil
}

// Errors reports a fatal serve error. It is closed when serving stops.
func (app *Application) Errors() <-chan error {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.serveErr
}

// Stop shuts down in reverse dependency order: HTTP, open sessions,
// coordinator, store.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info().Msg("shutting down")

	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}

	// Shutdown does not track hijacked websocket connections
	app.registry.CloseAll(websocket.ReasonServerShutdown)

	if err := app.coordinator.Stop(); err != nil && !errors.Is(err, chat.ErrCoordinatorNotRunning) {
		errs = append(errs, fmt.Errorf("coordinator shutdown: %w", err))
	}

	if err := app.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store shutdown: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		app.logger.Error().Err(err).Msg("shutdown finished with errors")
		return err
	}
	app.logger.Info().Msg("shutdown complete")
	return nil
}

// Addr is the bound listen address, or the configured one before Start.
func (app *Application) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

func (app *Application) Handler() http.Handler {
	return app.apiServer
}
