package cmd

import (
	"github.com/Ludea/Sparus/cli"
	"github.com/Ludea/Sparus/pkg/paths"
	"github.com/spf13/cobra"
)

// PathsOutput lists the per-user locations Sparus uses.
type PathsOutput struct {
	ConfigFile string `json:"config_file"`
	DataDir    string `json:"data_dir"`
	PluginsDir string `json:"plugins_dir"`
	StateDir   string `json:"state_dir"`
	CacheDir   string `json:"cache_dir"`
	SocketPath string `json:"socket_path"`
}

func NewPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the paths used by Sparus",
		Long: `Print the paths used by Sparus as JSON.

- config_file: Sparus.json
- data_dir: Persistent data (configuration, plugins)
- plugins_dir: Component plugins and web plugin scripts
- state_dir: Logs and the daemon pid file
- cache_dir: Regenerable data
- socket_path: Shell API socket of 'sparus serve'

SPARUS_HOME moves every directory under one root.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd, PathsOutput{
				ConfigFile: cli.ConfigPath(cli.GetOptions(cmd)),
				DataDir:    paths.DataDir(),
				PluginsDir: paths.PluginsDir(),
				StateDir:   paths.StateDir(),
				CacheDir:   paths.CacheDir(),
				SocketPath: paths.SocketPath(),
			})
		},
	}
}
