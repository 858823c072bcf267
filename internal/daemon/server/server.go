// Package server exposes the launcher core to the shell over a unix
// socket: a JSON command endpoint and a websocket event stream.
package server

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

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/internal/daemon/engine"
	"github.com/Ludea/Sparus/pkg/launcher"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// InvokePrefix is the path prefix of shell commands.
const InvokePrefix = "/api/invoke/"

// RunningInfo describes the daemon instance, served on /api/info.
type RunningInfo struct {
	Version    string    `json:"version"`
	ConfigFile string    `json:"config_file"`
	PluginsDir string    `json:"plugins_dir"`
	StartedAt  time.Time `json:"started_at"`
}

// Server manages the daemon's HTTP server over a Unix socket.
type Server struct {
	logger   *logrus.Entry
	mu       sync.Mutex
	server   *http.Server
	engine   *engine.Engine
	info     *RunningInfo
	upgrader websocket.Upgrader
}

// New creates a new Server instance.
func New(logger *logrus.Entry) *Server {
	return &Server{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The socket is private to the user; the shell's webview origin varies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SetEngine sets the service engine for the server.
func (s *Server) SetEngine(eng *engine.Engine) {
	s.engine = eng
}

// SetRunningInfo sets the instance description.
func (s *Server) SetRunningInfo(info *RunningInfo) {
	s.info = info
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/info", s.handleInfo)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc(InvokePrefix, s.handleInvoke)
	return mux
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set restrictive permissions on socket
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.WithField("socket", socketPath).Info("Shell API listening")
	return s.Serve(listener)
}

// Serve serves the API on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler: h2c.NewHandler(s.Handler(), &http2.Server{}),
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if s.info == nil {
		http.Error(w, "info not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.info)
}

// handleEvents upgrades to a websocket and forwards every bus event as a
// JSON text message until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	bus := s.engine.Bus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)
	s.logger.Debug("Event listener connected")

	// Reads only detect the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			s.logger.Debug("Event listener disconnected")
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.WithError(err).Debug("Event listener write failed")
				return
			}
		}
	}
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, InvokePrefix)
	var params launcher.Params
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	logger := s.logger.WithField("command", name)
	logger.Debug("Invoking command")
	result, err := s.engine.Launcher().Invoke(r.Context(), name, params)
	if errors.Is(err, launcher.ErrUnknownCommand) {
		http.Error(w, fmt.Sprintf("unknown command %q", name), http.StatusNotFound)
		return
	}
	if err != nil {
		serr := sparuserrors.From(err)
		logger.WithError(err).WithField("kind", serr.Kind).Warn("Command failed")
		writeJSON(w, http.StatusUnprocessableEntity, serr)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
