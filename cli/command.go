package cli

import (
	"github.com/Ludea/Sparus/config"
	"github.com/Ludea/Sparus/logging"
	"github.com/Ludea/Sparus/pkg/paths"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CommandOptions holds common options for Sparus commands
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
}

// NewStandardCommand creates a new command with the standard Sparus flags
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to the Sparus.json config file")

	SetStyledHelp(cmd)
	return cmd
}

// GetLogger returns the CLI logger configured from the command flags.
func GetLogger(cmd *cobra.Command) *logrus.Entry {
	entry := logging.NewLogger("sparus-cli")

	opts := GetOptions(cmd)
	if opts.Verbose {
		entry.Logger.SetLevel(logrus.DebugLevel)
	}
	if opts.JSONOutput {
		entry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return entry
}

// GetOptions extracts common options from a command
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
	}
}

// ConfigPath resolves the configuration file: the --config flag, then
// SPARUS_CONFIG, then the per-user default.
func ConfigPath(opts CommandOptions) string {
	if opts.ConfigFile != "" {
		return opts.ConfigFile
	}
	return paths.ConfigFile()
}

// LoadConfig loads the configuration the command should use. Without an
// explicit --config the file is seeded from the sample on first use.
func LoadConfig(opts CommandOptions) (*config.Config, error) {
	path := ConfigPath(opts)
	if opts.ConfigFile == "" {
		if _, err := config.EnsureSeeded(path); err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}
