package cmd

import (
	"context"
	"os"

	"github.com/Ludea/Sparus/cli"
	"github.com/Ludea/Sparus/logging"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/spf13/cobra"
)

// NewUpdateCmd returns the command that brings a workspace to a
// repository version.
func NewUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <repository-url>",
		Short: "Update a game workspace from a repository",
		Long: `Download and apply the packages that bring the workspace to the goal
version (the repository's current version by default). An interrupted
update resumes where it stopped when run again.`,
		Example: `# Install or update the configured workspace
sparus update https://cdn.example.com/kataster

# Pin a version into a specific directory
sparus update --workspace ~/Games/kataster --goal 1.2.0 ./repository`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspacePath, _ := cmd.Flags().GetString("workspace")
			goal, _ := cmd.Flags().GetString("goal")
			opts := cli.GetOptions(cmd)
			auth := authFromFlags(cmd)

			run := func(ctx context.Context, emitter events.Emitter) error {
				l, err := newLauncher(ctx, cmd, emitter)
				if err != nil {
					return err
				}
				defer l.Close(context.Background())
				if workspacePath == "" {
					workspacePath = l.Config().WorkspacePath
				}
				return l.UpdateWorkspace(ctx, workspacePath, args[0], auth, goal)
			}

			if !opts.JSONOutput && cli.IsTerminal(os.Stdout) {
				title := workspacePath
				if title == "" {
					title = args[0]
				}
				err := cli.RunUpdateView(cmd.Context(), cmd.OutOrStdout(), title, run)
				if err == nil {
					logging.NewConsole().WithWriter(cmd.OutOrStdout()).Success("Workspace is up to date")
				}
				return err
			}
			return run(cmd.Context(), cli.LogProgress(cli.GetLogger(cmd)))
		},
	}

	cmd.Flags().StringP("workspace", "w", "", "Workspace directory (default: workspace_path from config)")
	cmd.Flags().StringP("goal", "g", "", "Version to reach (default: the repository's current version)")
	addAuthFlags(cmd)
	return cmd
}
