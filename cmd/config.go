package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/Ludea/Sparus/cli"
	"github.com/Ludea/Sparus/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd returns the config command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the launcher configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigSchemaCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with defaults applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			if cli.GetOptions(cmd).JSONOutput {
				format = "json"
			}
			out, err := renderConfig(cfg, format)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringP("format", "f", "json", "Output format: json, yaml, toml")
	return cmd
}

// configDocument flattens first-class fields and raw sections into one
// plain JSON-typed map.
func configDocument(cfg *config.Config) (map[string]interface{}, error) {
	fields, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	merged := map[string]interface{}{}
	for key, value := range cfg.Sections {
		merged[key] = value
	}
	if err := json.Unmarshal(fields, &merged); err != nil {
		return nil, err
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	doc := map[string]interface{}{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func renderConfig(cfg *config.Config, format string) ([]byte, error) {
	doc, err := configDocument(cfg)
	if err != nil {
		return nil, err
	}
	switch format {
	case "yaml", "yml":
		return yaml.Marshal(doc)
	case "toml":
		return toml.Marshal(doc)
	case "json", "":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), cli.ConfigPath(cli.GetOptions(cmd)))
			return nil
		},
	}
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration document",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return nil
		},
	}
}
