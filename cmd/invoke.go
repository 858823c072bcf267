package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Ludea/Sparus/cli"
	"github.com/Ludea/Sparus/pkg/daemon"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/Ludea/Sparus/pkg/launcher"
	"github.com/Ludea/Sparus/pkg/paths"
	"github.com/spf13/cobra"
)

// newClient connects to the running daemon, or builds an in-process
// launcher when none answers.
func newClient(cmd *cobra.Command) (daemon.Client, error) {
	socket, _ := cmd.Flags().GetString("socket")
	if socket == "" {
		socket = paths.SocketPath()
	}
	return daemon.New(socket, func() (daemon.Client, error) {
		bus := events.NewBus(64)
		l, err := newLauncher(cmd.Context(), cmd, bus)
		if err != nil {
			return nil, err
		}
		return daemon.NewLocalClient(l, bus, true), nil
	})
}

// NewInvokeCmd returns the command that runs a shell operation by name,
// through the daemon when it is running.
func NewInvokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoke <command> [params-json]",
		Short: "Run a shell API operation by name",
		Long: "Runs one of the operations the shell calls, through the running daemon or in-process.\n\nCommands: " +
			strings.Join(launcher.Commands(), ", "),
		Example: `sparus invoke get_game_exe_name '{"path": "/games/kataster"}'
sparus invoke call_plugin_function '{"plugin": "world", "function": "get-version"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params launcher.Params
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
					return fmt.Errorf("invalid params: %w", err)
				}
			}

			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()
			cli.GetLogger(cmd).WithField("daemon", client.IsRunning()).Debugf("Invoking %s", args[0])

			var result json.RawMessage
			if err := client.Invoke(cmd.Context(), args[0], params, &result); err != nil {
				return err
			}
			if len(result) == 0 {
				result = json.RawMessage("null")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(result))
			return nil
		},
	}
	cmd.Flags().String("socket", "", "Daemon socket path")
	return cmd
}

// NewEventsCmd returns the command that prints daemon notifications as
// JSON lines.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream notifications from the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			socket, _ := cmd.Flags().GetString("socket")
			if socket == "" {
				socket = paths.SocketPath()
			}
			client := daemon.NewRemoteClient(socket)
			defer client.Close()
			if !client.IsRunning() {
				return fmt.Errorf("daemon is not running; start it with 'sparus serve'")
			}

			ch, err := client.StreamEvents(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for ev := range ch {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().String("socket", "", "Daemon socket path")
	return cmd
}
