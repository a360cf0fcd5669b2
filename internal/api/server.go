package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"livechat/internal/chat"
	"livechat/pkg/interfaces"
	"livechat/pkg/types"
)

const healthTimeout = 5 * time.Second

// StatsProvider reports the coordinator's live view of the room.
type StatsProvider interface {
	Stats(ctx context.Context) (chat.Stats, error)
}

// Options tunes the HTTP surface.
type Options struct {
	// HistoryLimit caps /api/chat/history.
	HistoryLimit   int
	AllowedOrigins []string
}

// Server is the HTTP face of the chat: health, history, stats, metrics and
// the websocket endpoint. It holds no chat logic of its own.
type Server struct {
	store  interfaces.MessageStore
	stats  StatsProvider
	ws     http.Handler
	opts   Options
	router chi.Router
	logger zerolog.Logger
}

func NewServer(store interfaces.MessageStore, stats StatsProvider, ws http.Handler, opts Options, logger *zerolog.Logger) *Server {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = chat.DefaultConfig().HistoryLimit
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		store:  store,
		stats:  stats,
		ws:     ws,
		opts:   opts,
		router: chi.NewRouter(),
		logger: l.With().Str("component", "http").Logger(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(recordMetrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.healthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/chat", func(r chi.Router) {
		r.Get("/history", s.history)
		r.Get("/stats", s.chatStats)
	})
	if s.ws != nil {
		r.Handle("/ws", s.ws)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status    string      `json:"status"`
	Timestamp string      `json:"timestamp"`
	Store     string      `json:"store"`
	Chat      *chat.Stats `json:"chat,omitempty"`
}

type HistoryResponse struct {
	Messages []types.ChatMessage `json:"messages"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /health - 503 when the store or the coordinator is unavailable.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Store:     "healthy",
	}

	if err := s.store.HealthCheck(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Store = "error: " + err.Error()
	}

	stats, err := s.stats.Stats(ctx)
	if err != nil {
		resp.Status = "unhealthy"
	} else {
		resp.Chat = &stats
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, resp)
}

// GET /api/chat/history?limit=N
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := s.opts.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > s.opts.HistoryLimit {
			s.sendError(w, "limit must be between 1 and "+strconv.Itoa(s.opts.HistoryLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	messages, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load history")
		s.sendError(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []types.ChatMessage{}
	}
	s.sendJSON(w, http.StatusOK, HistoryResponse{Messages: messages})
}

// GET /api/chat/stats
func (s *Server) chatStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		s.sendError(w, "Chat coordinator unavailable", http.StatusServiceUnavailable)
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response")
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}
