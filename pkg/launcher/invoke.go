package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/Ludea/Sparus/pkg/updater/repository"
)

// ErrUnknownCommand is returned by Invoke for a name outside Commands().
var ErrUnknownCommand = errors.New("unknown command")

// Params is the union of the arguments of every shell command.
type Params struct {
	RepositoryURL string          `json:"repository_url,omitempty"`
	WorkspacePath string          `json:"workspace_path,omitempty"`
	Username      string          `json:"username,omitempty"`
	Password      string          `json:"password,omitempty"`
	GoalVersion   string          `json:"goal_version,omitempty"`
	Path          string          `json:"path,omitempty"`
	Plugin        string          `json:"plugin,omitempty"`
	Function      string          `json:"function,omitempty"`
	Args          json.RawMessage `json:"args,omitempty"`
}

func (p Params) auth() repository.Auth {
	return repository.NewAuth(p.Username, p.Password)
}

type command func(ctx context.Context, l *Launcher, p Params) (interface{}, error)

var commands = map[string]command{
	"update_available": func(ctx context.Context, l *Launcher, p Params) (interface{}, error) {
		return l.UpdateAvailable(ctx, p.RepositoryURL, p.auth())
	},
	"update_workspace": func(ctx context.Context, l *Launcher, p Params) (interface{}, error) {
		path := p.WorkspacePath
		if path == "" {
			path = l.Config().WorkspacePath
		}
		return nil, l.UpdateWorkspace(ctx, path, p.RepositoryURL, p.auth(), p.GoalVersion)
	},
	"check_if_installed": func(_ context.Context, l *Launcher, p Params) (interface{}, error) {
		return nil, l.CheckIfInstalled(p.Path)
	},
	"get_game_exe_name": func(_ context.Context, l *Launcher, p Params) (interface{}, error) {
		return l.GameExeName(p.Path)
	},
	"get_current_path": func(_ context.Context, l *Launcher, _ Params) (interface{}, error) {
		return l.CurrentPath()
	},
	"call_plugin_function": func(ctx context.Context, l *Launcher, p Params) (interface{}, error) {
		return l.CallPluginFunction(ctx, p.Plugin, p.Function, p.Args)
	},
	"list_js_plugins": func(_ context.Context, l *Launcher, _ Params) (interface{}, error) {
		return l.ListJSPlugins()
	},
	"list_plugins": func(ctx context.Context, l *Launcher, _ Params) (interface{}, error) {
		return l.PluginInventory(ctx)
	},
	"sync_plugins": func(ctx context.Context, l *Launcher, _ Params) (interface{}, error) {
		return nil, l.SyncPlugins(ctx)
	},
}

// Commands lists the operation names accepted by Invoke.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs a shell operation by name.
func (l *Launcher) Invoke(ctx context.Context, name string, p Params) (interface{}, error) {
	cmd, ok := commands[name]
	if !ok {
		return nil, ErrUnknownCommand
	}
	return cmd(ctx, l, p)
}
