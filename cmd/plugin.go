package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Ludea/Sparus/cli"
	"github.com/Ludea/Sparus/logging"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/spf13/cobra"
)

// NewPluginCmd returns the plugin command group.
func NewPluginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Inspect, call and sync sandboxed plugins",
	}
	cmd.AddCommand(newPluginListCmd())
	cmd.AddCommand(newPluginCallCmd())
	cmd.AddCommand(newPluginSyncCmd())
	return cmd
}

// PluginList is the machine-readable result of `sparus plugin list`.
type PluginList struct {
	Components map[string]string `json:"components"`
	Scripts    []string          `json:"scripts"`
}

func newPluginListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed component plugins with their versions, and web plugin scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLauncher(cmd.Context(), cmd, events.Discard)
			if err != nil {
				return err
			}
			defer l.Close(context.Background())

			inventory, err := l.PluginInventory(cmd.Context())
			if err != nil {
				return err
			}
			scripts, err := l.ListJSPlugins()
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, PluginList{Components: inventory, Scripts: scripts})
			}

			console := logging.NewConsole().WithWriter(cmd.OutOrStdout())
			console.Path("Plugins", l.PluginsDir())
			names := make([]string, 0, len(inventory))
			for name := range inventory {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				console.Field(name, inventory[name])
			}
			for _, script := range scripts {
				console.Field("script", script)
			}
			if len(names) == 0 && len(scripts) == 0 {
				console.Warn("No plugins installed")
			}
			return nil
		},
	}
}

func newPluginCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <plugin> <function> [args-json]",
		Short: "Call an exported plugin function",
		Long:  "Arguments are a JSON array passed positionally to the export. The result is printed as JSON.",
		Example: `sparus plugin call world get-version
sparus plugin call echo echo '[{"n": 7, "s": "hi"}]'`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw json.RawMessage
			if len(args) == 3 {
				raw = json.RawMessage(args[2])
			}

			l, err := newLauncher(cmd.Context(), cmd, events.Discard)
			if err != nil {
				return err
			}
			defer l.Close(context.Background())

			result, err := l.CallPluginFunction(cmd.Context(), args[0], args[1], raw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(result))
			return nil
		},
	}
}

func newPluginSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one plugin sync session against the control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cli.GetLogger(cmd)
			emitter := events.EmitterFunc(func(name string, payload interface{}) {
				logger.WithField("event", name).Infof("%v", payload)
			})
			l, err := newLauncher(cmd.Context(), cmd, emitter)
			if err != nil {
				return err
			}
			defer l.Close(context.Background())
			return l.SyncPlugins(cmd.Context())
		},
	}
}
