// Package cmd holds the cobra commands of the sparus binary.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Ludea/Sparus/cli"
	"github.com/Ludea/Sparus/config"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/Ludea/Sparus/pkg/launcher"
	"github.com/Ludea/Sparus/pkg/updater/repository"
	"github.com/spf13/cobra"
)

// newLauncher loads the configuration named by the command flags and
// builds a launcher publishing on emitter.
func newLauncher(ctx context.Context, cmd *cobra.Command, emitter events.Emitter) (*launcher.Launcher, error) {
	cfg, err := cli.LoadConfig(cli.GetOptions(cmd))
	if err != nil {
		return nil, err
	}
	return launcher.New(ctx, launcher.Options{
		Config:  cfg,
		Emitter: emitter,
	})
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return cli.LoadConfig(cli.GetOptions(cmd))
}

// addAuthFlags registers repository credential flags.
func addAuthFlags(cmd *cobra.Command) {
	cmd.Flags().String("username", "", "Repository basic-auth user")
	cmd.Flags().String("password", "", "Repository basic-auth password")
}

func authFromFlags(cmd *cobra.Command) repository.Auth {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	return repository.NewAuth(username, password)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
