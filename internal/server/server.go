package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/syncrospace/office-server/internal/chat"
	"github.com/syncrospace/office-server/internal/config"
	"github.com/syncrospace/office-server/internal/office"
	"github.com/syncrospace/office-server/internal/ratelimit"
	"github.com/syncrospace/office-server/internal/ws"
)

// Server is the HTTP surface of the office server: room management
// endpoints plus the WebSocket upgrade.
type Server struct {
	addr      string
	mux       *http.ServeMux
	manager   *office.Manager
	registry  *ws.Registry
	limiter   *ratelimit.Limiter
	stopPrune context.CancelFunc
}

// Option configures a Server.
type Option func(*options)

type options struct {
	store chat.Store
}

// WithRedis stores chat history in Redis instead of process memory.
func WithRedis(client redis.Cmdable) Option {
	return func(o *options) {
		o.store = chat.NewRedisStore(client)
	}
}

// New creates a Server from the configuration.
func New(cfg config.Config, opts ...Option) *Server {
	o := options{store: chat.NewMemoryStore()}
	for _, opt := range opts {
		opt(&o)
	}

	var regOpts []ws.Option
	if cfg.MaxConns > 0 {
		regOpts = append(regOpts, ws.WithMaxConns(cfg.MaxConns))
	}
	if cfg.IdleTimeout > 0 {
		regOpts = append(regOpts, ws.WithIdleTimeout(cfg.IdleTimeout))
	}
	registry := ws.NewRegistry(regOpts...)

	manager := office.NewManager(o.store, func(roomID string) office.Sender {
		return registry.RoomSender(roomID)
	})

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Max > 0 {
		limiter = ratelimit.New(cfg.RateLimit.Max, cfg.RateLimit.Window)
	}

	s := &Server{
		addr:     cfg.ListenAddr,
		mux:      http.NewServeMux(),
		manager:  manager,
		registry: registry,
		limiter:  limiter,
	}
	if limiter != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopPrune = cancel
		go s.pruneLoop(ctx, cfg.RateLimit.Window)
	}
	s.routes()
	return s
}

// pruneLoop drops stale limiter keys once per window, keeping the
// per-IP map from growing with one-off clients.
func (s *Server) pruneLoop(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = time.Minute
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Prune()
		}
	}
}

// Manager returns the room manager.
func (s *Server) Manager() *office.Manager {
	return s.manager
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	return http.ListenAndServe(s.addr, s.mux)
}

// Shutdown disposes every room and closes every connection.
func (s *Server) Shutdown() {
	if s.stopPrune != nil {
		s.stopPrune()
	}
	s.manager.Shutdown()
	s.registry.Shutdown()
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	s.mux.HandleFunc("POST /api/rooms", s.handleCreateRoom)
	s.mux.HandleFunc("DELETE /api/rooms/{id}", s.handleDeleteRoom)
	s.mux.Handle("GET /ws", ws.NewHandler(s.manager, s.registry, s.limiter))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.manager.List())
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow(clientIP(r)) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	var settings office.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	room := s.manager.Create(settings)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(room.Metadata())
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.manager.Get(id) == nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	s.manager.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
