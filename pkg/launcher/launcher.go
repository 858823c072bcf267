// Package launcher implements the operations the shell invokes: update
// checks and runs, game discovery, plugin calls and plugin sync.
package launcher

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Ludea/Sparus/config"
	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/logging"
	"github.com/Ludea/Sparus/pkg/artifactserver"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/Ludea/Sparus/pkg/paths"
	"github.com/Ludea/Sparus/pkg/pluginhost"
	"github.com/Ludea/Sparus/pkg/pluginsync"
	"github.com/Ludea/Sparus/pkg/spawner"
	"github.com/Ludea/Sparus/pkg/updater"
	"github.com/Ludea/Sparus/pkg/updater/progress"
	"github.com/Ludea/Sparus/pkg/updater/repository"
	"github.com/Ludea/Sparus/pkg/updater/workspace"
	"github.com/Ludea/Sparus/util/pathutil"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// JSPluginExt marks web plugins listed by ListJSPlugins.
const JSPluginExt = ".js"

// Options configures a Launcher.
type Options struct {
	Config *config.Config
	// PluginsDir defaults to paths.PluginsDir().
	PluginsDir string
	// Emitter receives progress and plugin notifications.
	Emitter events.Emitter
	// Spawner defaults to a new dispatcher.
	Spawner *spawner.LocalSpawner
	// Conn overrides dialing the control plane during SyncPlugins.
	Conn grpc.ClientConnInterface
}

// Launcher is the core facade. It is safe for concurrent use.
type Launcher struct {
	mu         sync.RWMutex
	cfg        *config.Config
	pluginsDir string
	emitter    events.Emitter
	host       *pluginhost.Host
	spawner    *spawner.LocalSpawner
	conn       grpc.ClientConnInterface
	workspaces map[string]*workspace.Workspace
	logger     *logrus.Entry
}

// New creates a launcher and its plugin host.
func New(ctx context.Context, opts Options) (*Launcher, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.PluginsDir == "" {
		opts.PluginsDir = paths.PluginsDir()
	}
	if opts.Emitter == nil {
		opts.Emitter = events.Discard
	}
	if opts.Spawner == nil {
		opts.Spawner = spawner.New()
	}

	host, err := pluginhost.New(ctx)
	if err != nil {
		return nil, err
	}
	return &Launcher{
		cfg:        opts.Config,
		pluginsDir: opts.PluginsDir,
		emitter:    opts.Emitter,
		host:       host,
		spawner:    opts.Spawner,
		conn:       opts.Conn,
		workspaces: make(map[string]*workspace.Workspace),
		logger:     logging.NewLogger("launcher"),
	}, nil
}

// Close releases the plugin host.
func (l *Launcher) Close(ctx context.Context) error {
	return l.host.Close(ctx)
}

// Config returns the active configuration.
func (l *Launcher) Config() *config.Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// SetConfig swaps the configuration, e.g. after a reload.
func (l *Launcher) SetConfig(cfg *config.Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
}

// PluginsDir returns the plugins directory.
func (l *Launcher) PluginsDir() string {
	return l.pluginsDir
}

// Host returns the plugin host.
func (l *Launcher) Host() *pluginhost.Host {
	return l.host
}

// workspace returns the shared handle for path so that concurrent updates
// of one directory serialise on the same lock.
func (l *Launcher) workspace(path string) (*workspace.Workspace, error) {
	abs, err := pathutil.Expand(path)
	if err != nil {
		return nil, sparuserrors.IO("resolve workspace", path, err)
	}
	key, err := pathutil.NormalizeForLookup(abs)
	if err != nil {
		return nil, sparuserrors.IO("resolve workspace", path, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if ws, ok := l.workspaces[key]; ok {
		return ws, nil
	}
	ws, err := workspace.Open(abs)
	if err != nil {
		return nil, err
	}
	l.workspaces[key] = ws
	return ws, nil
}

// LocalVersion returns the installed version of the configured workspace,
// or initial_version when none is recorded.
func (l *Launcher) LocalVersion() string {
	cfg := l.Config()
	return updater.LocalVersion(cfg.WorkspacePath, cfg.InitialVersion)
}

// UpdateAvailable reports whether the repository offers a version newer
// than the local one.
func (l *Launcher) UpdateAvailable(ctx context.Context, repositoryURL string, auth repository.Auth) (bool, error) {
	repo, err := repository.Open(repositoryURL, auth)
	if err != nil {
		return false, err
	}
	return updater.UpdateAvailable(ctx, repo, l.LocalVersion())
}

// UpdateWorkspace runs an update on the spawner and waits for its result.
// Progress is emitted as sparus://downloadinfos. Cancelling ctx stops the
// update at its next progress report.
func (l *Launcher) UpdateWorkspace(ctx context.Context, workspacePath, repositoryURL string, auth repository.Auth, goal string) error {
	ws, err := l.workspace(workspacePath)
	if err != nil {
		return err
	}
	repo, err := repository.Open(repositoryURL, auth)
	if err != nil {
		return err
	}

	task, reply := spawner.NewUpdateTask(ws, repo, goal, l.emitter)
	task.Continue = func(progress.DownloadInfos) bool { return ctx.Err() == nil }
	l.logger.WithFields(logrus.Fields{
		"workspace":  ws.Path(),
		"repository": repo.URL(),
		"goal":       goal,
	}).Info("Queueing workspace update")
	l.spawner.Spawn(task)
	return <-reply
}

// CheckIfInstalled reports whether path holds an installed game.
func (l *Launcher) CheckIfInstalled(path string) error {
	return updater.CheckIfInstalled(path)
}

// GameExeName returns the game executable found in path.
func (l *Launcher) GameExeName(path string) (string, error) {
	return updater.GameExeName(path)
}

// CurrentPath returns the working directory of the process.
func (l *Launcher) CurrentPath() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", sparuserrors.IO("getwd", ".", err)
	}
	return wd, nil
}

// CallPluginFunction calls an export of an installed plugin. args, when
// present, must be a JSON array.
func (l *Launcher) CallPluginFunction(ctx context.Context, plugin, function string, args json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(args)
	if bytes.Equal(trimmed, []byte("null")) {
		trimmed = nil
	}
	if err := pluginhost.ValidName(plugin); err != nil {
		return nil, err
	}
	dir := filepath.Join(l.pluginsDir, plugin)
	out, err := l.host.CallJSON(ctx, dir, plugin, function, trimmed)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

// PluginInventory lists installed plugins with the version each reports.
func (l *Launcher) PluginInventory(ctx context.Context) (map[string]string, error) {
	return l.syncClient().Inventory(ctx)
}

// ListJSPlugins returns the slash-separated paths, relative to the plugins
// directory, of every web plugin script one level below it.
func (l *Launcher) ListJSPlugins() ([]string, error) {
	entries, err := os.ReadDir(l.pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, sparuserrors.IO("read", l.pluginsDir, err)
	}

	scripts := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(l.pluginsDir, entry.Name())
		files, err := os.ReadDir(sub)
		if err != nil {
			return nil, sparuserrors.IO("read", sub, err)
		}
		for _, f := range files {
			if f.Type()&fs.ModeType == 0 && filepath.Ext(f.Name()) == JSPluginExt {
				scripts = append(scripts, entry.Name()+"/"+f.Name())
			}
		}
	}
	sort.Strings(scripts)
	return scripts, nil
}

func (l *Launcher) syncClient() *pluginsync.Client {
	cfg := l.Config()
	return pluginsync.New(pluginsync.Options{
		LauncherName: cfg.LauncherName,
		LauncherURL:  cfg.LauncherURL,
		PluginsURL:   cfg.PluginsURL,
		PluginsDir:   l.pluginsDir,
		Conn:         l.conn,
		Emitter:      l.emitter,
	}, l.host)
}

// SyncPlugins runs one best-effort plugin sync session.
func (l *Launcher) SyncPlugins(ctx context.Context) error {
	return l.syncClient().Run(ctx)
}

// ArtifactServer builds the loopback server for the plugins directory.
func (l *Launcher) ArtifactServer() *artifactserver.Server {
	return artifactserver.New(l.pluginsDir, l.Config().ArtifactPort, logging.NewLogger("artifactserver"))
}

// ServeArtifacts serves the plugins directory until ctx ends.
func (l *Launcher) ServeArtifacts(ctx context.Context) error {
	if err := os.MkdirAll(l.pluginsDir, 0o755); err != nil {
		return sparuserrors.IO("create", l.pluginsDir, err)
	}
	return l.ArtifactServer().ListenAndServe(ctx)
}
