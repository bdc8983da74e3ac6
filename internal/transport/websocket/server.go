// Package websocket serves the game over WebSocket, plus the HTTP health
// probe and the static client bundle.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/observability"
)

// Handler receives the lifecycle and frames of every connection.
// Calls for a single connection are never concurrent.
type Handler interface {
	Connect(connID string)
	Handle(connID string, frame []byte)
	Disconnect(connID string)
}

// Server accepts WebSocket connections on /ws and hands them to a Handler.
type Server struct {
	cfg      config.ServerConfig
	hub      *Hub
	handler  Handler
	logger   *zap.Logger
	upgrader gorilla.Upgrader
	newID    func() string
	now      func() time.Time

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
	running  bool
	stopping bool
	conns    sync.WaitGroup
}

// NewServer creates a Server.
//
// Precondition: hub, handler and logger must be non-nil.
// Postcondition: Returns a Server ready to be started with ListenAndServe.
func NewServer(cfg config.ServerConfig, hub *Hub, handler Handler, logger *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		hub:     hub,
		handler: handler,
		logger:  logger,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	s.upgrader = gorilla.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Routes returns the HTTP handler serving /ws, /health and static files.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/health", s.serveHealth)
	if s.cfg.StaticDir != "" {
		mux.Handle("/", spaHandler(s.cfg.StaticDir))
	}
	return mux
}

// ListenAndServe starts the HTTP listener and serves until Stop is called.
//
// Precondition: The server must not already be running.
// Postcondition: Returns nil after Stop, or the listen/serve error.
func (s *Server) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.httpSrv = srv
	s.running = true
	s.mu.Unlock()

	s.logger.Info("websocket server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Stop stops accepting connections, closes every live connection and waits
// for their handlers to finish.
//
// Postcondition: Every connection has been disconnected from the Handler.
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopping = true
	srv := s.httpSrv
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if wasRunning && srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("http shutdown", zap.Error(err))
		}
	}

	// Hijacked WebSocket connections are not closed by Shutdown.
	s.hub.closeAll()
	s.conns.Wait()

	s.logger.Info("websocket server stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.conns.Add(1)
	s.mu.Unlock()
	defer s.conns.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	start := time.Now()
	id := s.newID()
	logger := observability.ConnLogger(s.logger, id, r.RemoteAddr)
	c := newClient(id, conn, s.cfg.SendBuffer, logger)

	if !s.admit(c) {
		logger.Debug("connection refused during shutdown")
		return
	}
	go c.writePump(s.cfg.PingInterval(), s.cfg.WriteWait)
	logger.Info("client connected")

	s.handler.Connect(id)
	c.readPump(s.cfg.MaxMessageSize, s.cfg.PongWait, func(frame []byte) {
		s.handler.Handle(id, frame)
	})

	s.handler.Disconnect(id)
	s.hub.unregister(id)
	c.close()
	<-c.written
	logger.Info("client disconnected", zap.Duration("duration", time.Since(start)))
}

// admit registers c with the hub unless Stop has begun. Stop may have run
// closeAll while c was still upgrading, so the check follows registration.
//
// Postcondition: Returns true with c registered, or false with c closed and
// unregistered.
func (s *Server) admit(c *client) bool {
	s.hub.register(c)
	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if !stopping {
		return true
	}
	s.hub.unregister(c.id)
	c.close()
	return false
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}{
		Status:    "healthy",
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Debug("writing health response", zap.Error(err))
	}
}

// checkOrigin accepts requests without an Origin header, and any origin
// when the allow list is empty or contains "*".
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// spaHandler serves files under dir and falls back to index.html for any
// path that does not name a file.
func spaHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clean := filepath.Clean("/" + r.URL.Path)
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(clean)))
		if err != nil || info.IsDir() && clean != "/" {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		files.ServeHTTP(w, r)
	})
}
