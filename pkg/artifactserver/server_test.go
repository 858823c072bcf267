package artifactserver

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "plugins")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "hello"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello", "hello.wasm"), []byte("\x00asm-bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "secret.txt"), []byte("secret"), 0o644))
	return New(root, 0, nil), base
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestServesArtifacts(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/plugins/hello/hello.wasm")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "\x00asm-bytes", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Headers"))

	rec = do(t, h, http.MethodGet, "/plugins/world/world.wasm")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/plugins/hello")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "\x00asm-bytes", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/plugins/")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/plugins/hello/hello.wasm")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRefusesTraversal(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	for _, target := range []string{
		"/plugins/../secret.txt",
		"/plugins/hello/../../secret.txt",
		"/plugins/%2e%2e/secret.txt",
		"/plugins/..%2fsecret.txt",
	} {
		t.Run(target, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotContains(t, rec.Body.String(), "secret\n")
		})
	}
}

func TestRefusesSymlinkEscape(t *testing.T) {
	s, base := newTestServer(t)
	outside := filepath.Join(base, "outside")
	require.NoError(t, os.MkdirAll(outside, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("top-secret"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "evil.wasm"), []byte("top-secret"), 0o644))

	root := filepath.Join(base, "plugins")
	if err := os.Symlink(outside, filepath.Join(root, "evil")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret"), filepath.Join(root, "hello", "leak")))
	require.NoError(t, os.Symlink(filepath.Join(root, "hello", "hello.wasm"), filepath.Join(root, "alias.wasm")))
	h := s.Handler()

	for _, target := range []string{
		"/plugins/evil/secret",
		"/plugins/evil",
		"/plugins/hello/leak",
	} {
		t.Run(target, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotContains(t, rec.Body.String(), "top-secret")
		})
	}

	rec := do(t, h, http.MethodGet, "/plugins/alias.wasm")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "\x00asm-bytes", rec.Body.String())
}

func TestPreflight(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodOptions, "/plugins/hello/hello.wasm")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeOnListener(t *testing.T) {
	s, _ := newTestServer(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/plugins/hello/hello.wasm")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "\x00asm-bytes", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
