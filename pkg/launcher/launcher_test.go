package launcher

import (
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Ludea/Sparus/config"
	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/pkg/artifactserver"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/Ludea/Sparus/pkg/pluginhost/plugintest"
	"github.com/Ludea/Sparus/pkg/sparusrpc"
	"github.com/Ludea/Sparus/pkg/updater/progress"
	"github.com/Ludea/Sparus/pkg/updater/repository"
	"github.com/Ludea/Sparus/pkg/updater/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

type streamingServer struct {
	sparusrpc.UnimplementedLucleServer
	events []*sparusrpc.PluginEvent
}

func (s *streamingServer) Sparus(_ *sparusrpc.Plugins, stream sparusrpc.SparusStreamServer) error {
	for _, ev := range s.events {
		if err := stream.Send(ev); err != nil {
			return err
		}
	}
	return nil
}

func controlPlaneConn(t *testing.T, evs ...*sparusrpc.PluginEvent) *grpc.ClientConn {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ForceServerCodec(sparusrpc.Codec{}))
	sparusrpc.RegisterLucleServer(srv, &streamingServer{events: evs})
	go srv.Serve(listener)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newLauncher(t *testing.T, opts Options) *Launcher {
	t.Helper()
	if opts.PluginsDir == "" {
		opts.PluginsDir = t.TempDir()
	}
	if opts.Config == nil {
		opts.Config = config.Default()
		opts.Config.WorkspacePath = t.TempDir()
	}
	l, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close(context.Background()) })
	return l
}

func TestPluginLifecycle(t *testing.T) {
	storeRoot := t.TempDir()
	plugintest.Install(t, storeRoot, "hello", plugintest.VersionPlugin("1.0.0"))
	plugintest.Install(t, storeRoot, "world", plugintest.VersionPlugin("2.1.0"))
	store := httptest.NewServer(artifactserver.New(storeRoot, 0, nil).Handler())
	defer store.Close()

	cfg := config.Default()
	cfg.PluginsURL = store.URL
	conn := controlPlaneConn(t,
		&sparusrpc.PluginEvent{Plugin: "hello", EventType: sparusrpc.EventInstall},
		&sparusrpc.PluginEvent{Plugin: "world", EventType: sparusrpc.EventInstall},
		&sparusrpc.PluginEvent{Plugin: "hello", EventType: sparusrpc.EventDelete},
	)
	l := newLauncher(t, Options{Config: cfg, Conn: conn})

	require.NoError(t, l.SyncPlugins(context.Background()))

	matches, err := filepath.Glob(filepath.Join(l.PluginsDir(), "*", "*.wasm"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "world.wasm", filepath.Base(matches[0]))

	out, err := l.CallPluginFunction(context.Background(), "world", "get-version", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"2.1.0"`, string(out))

	inventory, err := l.PluginInventory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"world": "2.1.0"}, inventory)
}

func TestCallPluginFunction(t *testing.T) {
	l := newLauncher(t, Options{})
	plugintest.Install(t, l.PluginsDir(), "echo", plugintest.EchoPlugin("0.3.0"))
	ctx := context.Background()

	out, err := l.CallPluginFunction(ctx, "echo", "echo", json.RawMessage(`[{"n": 7, "s": "hi", "xs": [1,2,3]}]`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n": 7, "s": "hi", "xs": [1,2,3]}`, string(out))

	out, err = l.CallPluginFunction(ctx, "echo", "get-version", json.RawMessage(`null`))
	require.NoError(t, err)
	assert.JSONEq(t, `"0.3.0"`, string(out))

	_, err = l.CallPluginFunction(ctx, "echo", "echo", json.RawMessage(`{"n": 7}`))
	require.Error(t, err)
	assert.Equal(t, sparuserrors.KindWasm, sparuserrors.GetKind(err))

	_, err = l.CallPluginFunction(ctx, "echo", "nope", nil)
	assert.Equal(t, sparuserrors.KindPluginMissing, sparuserrors.GetKind(err))

	_, err = l.CallPluginFunction(ctx, "echo", "boom", nil)
	assert.Equal(t, sparuserrors.KindWasm, sparuserrors.GetKind(err))

	_, err = l.CallPluginFunction(ctx, "ghost", "get-version", nil)
	assert.Error(t, err)
}

func TestCallPluginFunctionRejectsPathNames(t *testing.T) {
	base := t.TempDir()
	l := newLauncher(t, Options{PluginsDir: filepath.Join(base, "plugins")})
	require.NoError(t, os.WriteFile(filepath.Join(base, "outside.wasm"), plugintest.VersionPlugin("6.6.6"), 0o644))

	for _, name := range []string{"../outside", "..", "a/b", `a\b`, ""} {
		out, err := l.CallPluginFunction(context.Background(), name, "get-version", nil)
		require.Error(t, err, name)
		assert.Equal(t, sparuserrors.KindPluginMissing, sparuserrors.GetKind(err), name)
		assert.Nil(t, out)
	}
}

func TestListJSPlugins(t *testing.T) {
	l := newLauncher(t, Options{PluginsDir: filepath.Join(t.TempDir(), "plugins")})

	scripts, err := l.ListJSPlugins()
	require.NoError(t, err)
	assert.Empty(t, scripts)

	for _, p := range []string{"b/main.js", "a/ui.js", "a/readme.md", "top.js"} {
		path := filepath.Join(l.PluginsDir(), filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("//"), 0o644))
	}
	scripts, err = l.ListJSPlugins()
	require.NoError(t, err)
	assert.Equal(t, []string{"a/ui.js", "b/main.js"}, scripts)
}

func TestUpdateWorkspace(t *testing.T) {
	b := repotest.New(t, t.TempDir())
	b.Version("1.0.0", repotest.Tree{"game": {Content: "v1", Exe: true}})
	b.Version("1.0.1", repotest.Tree{"game": {Content: "v1.0.1", Exe: true}})
	b.Complete("1.0.0")
	b.Patch("1.0.0", "1.0.1")
	b.Current("1.0.0")

	bus := events.NewBus(1000)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	cfg := config.Default()
	cfg.InitialVersion = "1.0.0"
	cfg.WorkspacePath = t.TempDir()
	l := newLauncher(t, Options{Config: cfg, Emitter: bus})
	ctx := context.Background()

	available, err := l.UpdateAvailable(ctx, b.Dir(), repository.Auth{})
	require.NoError(t, err)
	assert.False(t, available)

	b.Current("1.0.1")
	available, err = l.UpdateAvailable(ctx, b.Dir(), repository.Auth{})
	require.NoError(t, err)
	assert.True(t, available)

	err = l.CheckIfInstalled(cfg.WorkspacePath)
	assert.Equal(t, sparuserrors.KindGameNotInstalled, sparuserrors.GetKind(err))

	require.NoError(t, l.UpdateWorkspace(ctx, cfg.WorkspacePath, b.Dir(), repository.Auth{}, ""))
	assert.Equal(t, "1.0.1", l.LocalVersion())
	assert.NoError(t, l.CheckIfInstalled(cfg.WorkspacePath))
	name, err := l.GameExeName(cfg.WorkspacePath)
	require.NoError(t, err)
	assert.Equal(t, "game", name)

	available, err = l.UpdateAvailable(ctx, b.Dir(), repository.Auth{})
	require.NoError(t, err)
	assert.False(t, available)

	var last progress.DownloadInfos
	for len(sub) > 0 {
		ev := <-sub
		require.Equal(t, events.DownloadInfos, ev.Name)
		last = ev.Payload.(progress.DownloadInfos)
	}
	assert.True(t, last.Done())
	assert.GreaterOrEqual(t, last.PackagesEnd, 1)
}

func TestUpdateWorkspaceCancelled(t *testing.T) {
	b := repotest.New(t, t.TempDir())
	b.Version("1.0.0", repotest.Tree{"game": {Content: "v1", Exe: true}})
	b.Complete("1.0.0")
	b.Current("1.0.0")

	l := newLauncher(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.UpdateWorkspace(ctx, t.TempDir(), b.Dir(), repository.Auth{}, "")
	assert.Equal(t, sparuserrors.KindCancelled, sparuserrors.GetKind(err))
}

func TestUpdateWorkspaceBadRepository(t *testing.T) {
	l := newLauncher(t, Options{})
	err := l.UpdateWorkspace(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "missing"), repository.Auth{}, "")
	assert.Equal(t, sparuserrors.KindRepository, sparuserrors.GetKind(err))
}

func TestCurrentPath(t *testing.T) {
	l := newLauncher(t, Options{})
	wd, err := os.Getwd()
	require.NoError(t, err)
	got, err := l.CurrentPath()
	require.NoError(t, err)
	assert.Equal(t, wd, got)
}
