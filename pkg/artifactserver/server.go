// Package artifactserver serves plugin artifacts over loopback HTTP.
package artifactserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ludea/Sparus/pkg/paths"
	"github.com/sirupsen/logrus"
)

// DefaultPort is the loopback port artifacts are served on.
const DefaultPort = 8012

// Prefix is the URL path prefix artifacts live under.
const Prefix = "/plugins/"

// ArtifactExt is the extension of the artifact served for a bare plugin name.
const ArtifactExt = ".wasm"

// Server serves files below root at Prefix.
type Server struct {
	root   string
	port   int
	logger *logrus.Entry
	server *http.Server
}

// New creates a server for root (usually paths.PluginsDir()).
func New(root string, port int, logger *logrus.Entry) *Server {
	if root == "" {
		root = paths.PluginsDir()
	}
	if port <= 0 {
		port = DefaultPort
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{root: root, port: port, logger: logger}
}

// Addr is the loopback address the server binds.
func (s *Server) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.port)
}

// Handler returns the HTTP handler, with CORS and traversal checks applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc(Prefix, s.handleArtifact)
	return s.withLogging(withCORS(refuseTraversal(mux)))
}

// ListenAndServe binds the loopback address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on an existing listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	s.logger.WithFields(logrus.Fields{
		"addr": listener.Addr().String(),
		"root": s.root,
	}).Info("Artifact server listening")

	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), strings.TrimSuffix(Prefix, "/"))
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if !within(s.root, full) {
		http.Error(w, "bad path", http.StatusBadRequest)
		return
	}

	resolved, status := s.resolve(full)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	f, err := os.Open(resolved)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { f.Close() }()

	info, err := f.Stat()
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if info.IsDir() {
		// /plugins/<name> resolves to the plugin's artifact.
		f.Close()
		if rel == "" || rel == "/" {
			http.NotFound(w, r)
			return
		}
		name := filepath.Base(full)
		if resolved, status = s.resolve(filepath.Join(resolved, name+ArtifactExt)); status != http.StatusOK {
			http.Error(w, http.StatusText(status), status)
			return
		}
		if f, err = os.Open(resolved); err != nil {
			http.NotFound(w, r)
			return
		}
		if info, err = f.Stat(); err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// resolve follows symlinks in p and refuses targets outside the root.
func (s *Server) resolve(p string) (string, int) {
	root, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return "", http.StatusNotFound
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", http.StatusNotFound
	}
	if !within(root, resolved) {
		s.logger.WithField("path", p).Warn("Refused artifact outside plugins root")
		return "", http.StatusBadRequest
	}
	return resolved, http.StatusOK
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// refuseTraversal rejects any request whose path contains a ".." segment,
// before the mux gets a chance to clean it into a redirect.
func refuseTraversal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, seg := range strings.Split(r.URL.Path, "/") {
			if seg == ".." {
				http.Error(w, "bad path", http.StatusBadRequest)
				return
			}
		}
		if strings.Contains(r.URL.Path, "\\") {
			http.Error(w, "bad path", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "*")
		h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("Artifact request")
	})
}
