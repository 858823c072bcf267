package cmd

import (
	"context"

	"github.com/Ludea/Sparus/cli"
	"github.com/Ludea/Sparus/logging"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/spf13/cobra"
)

// NewInstalledCmd returns the command that checks a directory for an
// installed game.
func NewInstalledCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "installed [path]",
		Short: "Check whether a game is installed in a directory",
		Long:  "Checks the directory (default: workspace_path from config) for an executable game file.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLauncher(cmd.Context(), cmd, events.Discard)
			if err != nil {
				return err
			}
			defer l.Close(context.Background())

			path := l.Config().WorkspacePath
			if len(args) == 1 {
				path = args[0]
			}
			if err := l.CheckIfInstalled(path); err != nil {
				return err
			}
			exe, err := l.GameExeName(path)
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, map[string]string{"path": path, "executable": exe})
			}
			console := logging.NewConsole().WithWriter(cmd.OutOrStdout())
			console.Success("Game installed")
			console.Path("Directory", path)
			console.Field("Executable", exe)
			return nil
		},
	}
}
