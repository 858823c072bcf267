package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ludea/Sparus/config"
	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/internal/daemon/engine"
	"github.com/Ludea/Sparus/internal/daemon/server"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/Ludea/Sparus/pkg/launcher"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLauncher(t *testing.T, bus *events.Bus) *launcher.Launcher {
	t.Helper()
	cfg := config.Default()
	cfg.WorkspacePath = t.TempDir()
	l, err := launcher.New(context.Background(), launcher.Options{
		Config:     cfg,
		PluginsDir: t.TempDir(),
		Emitter:    bus,
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close(context.Background()) })
	return l
}

// startDaemon serves the shell API on a fresh socket.
func startDaemon(t *testing.T) (string, *events.Bus) {
	t.Helper()
	dir, err := os.MkdirTemp("", "spd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	socket := filepath.Join(dir, "api.sock")

	bus := events.NewBus(16)
	logger := logrus.NewEntry(logrus.New())
	srv := server.New(logger)
	srv.SetEngine(engine.New(newLauncher(t, bus), bus, logger))
	go srv.ListenAndServe(socket)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	client := NewRemoteClient(socket)
	require.Eventually(t, client.IsRunning, 2*time.Second, 20*time.Millisecond)
	return socket, bus
}

func TestNewFallsBackToLocal(t *testing.T) {
	bus := events.NewBus(4)
	local := NewLocalClient(newLauncher(t, bus), bus, false)

	c, err := New(filepath.Join(t.TempDir(), "absent.sock"), func() (Client, error) { return local, nil })
	require.NoError(t, err)
	assert.Same(t, local, c)
	assert.False(t, c.IsRunning())
}

func TestNewPrefersRunningDaemon(t *testing.T) {
	socket, _ := startDaemon(t)

	c, err := New(socket, func() (Client, error) {
		t.Fatal("local client built while daemon is running")
		return nil, nil
	})
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, c.IsRunning())
}

func testClient(t *testing.T, c Client) {
	ctx := context.Background()

	var path string
	require.NoError(t, c.Invoke(ctx, "get_current_path", launcher.Params{}, &path))
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, path)

	var scripts []string
	require.NoError(t, c.Invoke(ctx, "list_js_plugins", launcher.Params{}, &scripts))
	assert.Empty(t, scripts)

	err = c.Invoke(ctx, "check_if_installed", launcher.Params{Path: filepath.Join(t.TempDir(), "x")}, nil)
	assert.Equal(t, sparuserrors.KindGameNotInstalled, sparuserrors.GetKind(err))
	assert.Contains(t, err.Error(), "folder doesn't exist")

	err = c.Invoke(ctx, "shutdown_machine", launcher.Params{}, nil)
	assert.ErrorIs(t, err, launcher.ErrUnknownCommand)
}

func TestRemoteClient(t *testing.T) {
	socket, _ := startDaemon(t)
	c := NewRemoteClient(socket)
	defer c.Close()
	testClient(t, c)
}

func TestLocalClient(t *testing.T) {
	bus := events.NewBus(4)
	c := NewLocalClient(newLauncher(t, bus), bus, false)
	defer c.Close()
	testClient(t, c)
}

func TestRemoteStreamEvents(t *testing.T) {
	socket, bus := startDaemon(t)
	c := NewRemoteClient(socket)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := c.StreamEvents(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	bus.Emit(events.Plugins, map[string]string{"plugin": "world", "event_type": "install"})

	select {
	case ev := <-ch:
		assert.Equal(t, events.Plugins, ev.Name)
		assert.Equal(t, "world", ev.Payload.(map[string]interface{})["plugin"])
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLocalStreamEvents(t *testing.T) {
	bus := events.NewBus(4)
	c := NewLocalClient(newLauncher(t, bus), bus, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := c.StreamEvents(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	bus.Emit(events.ConfigReload, nil)
	ev := <-ch
	assert.Equal(t, events.ConfigReload, ev.Name)

	cancel()
	assert.Eventually(t, func() bool { return bus.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}
