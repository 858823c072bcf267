package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Ludea/Sparus/config"
	"github.com/Ludea/Sparus/internal/daemon/engine"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/Ludea/Sparus/pkg/launcher"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *events.Bus, string) {
	t.Helper()
	pluginsDir := t.TempDir()
	bus := events.NewBus(16)
	cfg := config.Default()
	cfg.WorkspacePath = t.TempDir()

	l, err := launcher.New(context.Background(), launcher.Options{
		Config:     cfg,
		PluginsDir: pluginsDir,
		Emitter:    bus,
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close(context.Background()) })

	logger := logrus.NewEntry(logrus.New())
	srv := New(logger)
	srv.SetEngine(engine.New(l, bus, logger))
	srv.SetRunningInfo(&RunningInfo{Version: "test", PluginsDir: pluginsDir, StartedAt: time.Now()})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, bus, pluginsDir
}

func invoke(t *testing.T, ts *httptest.Server, name string, params interface{}) (*http.Response, []byte) {
	t.Helper()
	var body bytes.Buffer
	if params != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(params))
	}
	resp, err := http.Post(ts.URL+InvokePrefix+name, "application/json", &body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func TestHealthAndInfo(t *testing.T) {
	ts, _, pluginsDir := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	var info RunningInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "test", info.Version)
	assert.Equal(t, pluginsDir, info.PluginsDir)
}

func TestInvokeListJSPlugins(t *testing.T) {
	ts, _, pluginsDir := newTestServer(t)
	require.NoError(t, os.MkdirAll(filepath.Join(pluginsDir, "ui"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginsDir, "ui", "main.js"), []byte("//"), 0o644))

	resp, body := invoke(t, ts, "list_js_plugins", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var listed []string
	require.NoError(t, json.Unmarshal(body, &listed))
	assert.Equal(t, []string{"ui/main.js"}, listed)
}

func TestInvokeReturnsTaggedErrors(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, body := invoke(t, ts, "check_if_installed", map[string]string{
		"path": filepath.Join(t.TempDir(), "missing"),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var tagged map[string]string
	require.NoError(t, json.Unmarshal(body, &tagged))
	assert.Equal(t, "game-not-installed", tagged["kind"])
	assert.Equal(t, "folder doesn't exist", tagged["message"])
}

func TestInvokeRejectsBadRequests(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, _ := invoke(t, ts, "format_disk", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err := http.Post(ts.URL+InvokePrefix+"get_current_path", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + InvokePrefix + "get_current_path")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestInvokeGetCurrentPath(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, body := invoke(t, ts, "get_current_path", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	wd, err := os.Getwd()
	require.NoError(t, err)
	var path string
	require.NoError(t, json.Unmarshal(body, &path))
	assert.Equal(t, wd, path)
}

func TestEventStream(t *testing.T) {
	ts, bus, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	bus.Emit(events.ConfigReload, map[string]string{"config_file": "Sparus.json"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Event   string            `json:"event"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, events.ConfigReload, got.Event)
	assert.Equal(t, "Sparus.json", got.Payload["config_file"])

	conn.Close()
	assert.Eventually(t, func() bool { return bus.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeOnSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "sparus")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	socket := filepath.Join(dir, "api.sock")
	require.NoError(t, os.WriteFile(socket, nil, 0o600))

	srv := New(logrus.NewEntry(logrus.New()))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(socket) }()

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		},
	}}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://sparus/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	info, err := os.Stat(socket)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NoError(t, <-errCh)
}
