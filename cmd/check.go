package cmd

import (
	"context"

	"github.com/Ludea/Sparus/cli"
	"github.com/Ludea/Sparus/logging"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/spf13/cobra"
)

// UpdateStatus is the machine-readable result of `sparus check`.
type UpdateStatus struct {
	Repository      string `json:"repository"`
	LocalVersion    string `json:"local_version"`
	UpdateAvailable bool   `json:"update_available"`
}

// NewCheckCmd returns the command that compares the local and remote
// versions.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <repository-url>",
		Short: "Report whether the repository has a newer version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLauncher(cmd.Context(), cmd, events.Discard)
			if err != nil {
				return err
			}
			defer l.Close(context.Background())

			available, err := l.UpdateAvailable(cmd.Context(), args[0], authFromFlags(cmd))
			if err != nil {
				return err
			}
			status := UpdateStatus{
				Repository:      args[0],
				LocalVersion:    l.LocalVersion(),
				UpdateAvailable: available,
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, status)
			}

			console := logging.NewConsole().WithWriter(cmd.OutOrStdout())
			console.Field("Local version", status.LocalVersion)
			if available {
				console.Warn("An update is available")
			} else {
				console.Success("Up to date")
			}
			return nil
		},
	}
	addAuthFlags(cmd)
	return cmd
}
