package main

import (
	"os"

	"github.com/Ludea/Sparus/cli"
	"github.com/Ludea/Sparus/cmd"
	"github.com/Ludea/Sparus/pkg/profiling"
	"github.com/Ludea/Sparus/version"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"sparus",
		"Game launcher core: workspace updates and sandboxed plugins",
	)
	cli.SetVersionTemplate(rootCmd, version.GetInfo())

	profiler := profiling.NewCobraProfiler()
	profiler.AddFlags(rootCmd)
	rootCmd.PersistentPreRunE = profiler.PreRun
	rootCmd.PersistentPostRun = profiler.PostRun

	rootCmd.AddCommand(cmd.NewServeCmd())
	rootCmd.AddCommand(cmd.NewUpdateCmd())
	rootCmd.AddCommand(cmd.NewCheckCmd())
	rootCmd.AddCommand(cmd.NewInstalledCmd())
	rootCmd.AddCommand(cmd.NewPluginCmd())
	rootCmd.AddCommand(cmd.NewConfigCmd())
	rootCmd.AddCommand(cmd.NewPathsCmd())
	rootCmd.AddCommand(cmd.NewInvokeCmd())
	rootCmd.AddCommand(cmd.NewEventsCmd())
	rootCmd.AddCommand(cli.NewVersionCommand("sparus"))
	cli.ApplyStyledHelpRecursive(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
		cli.NewErrorHandler(verbose).Handle(err)
		os.Exit(1)
	}
}
