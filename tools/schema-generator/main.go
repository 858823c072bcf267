// Command schema-generator writes the JSON schema of Sparus.json so
// editors can validate the document.
package main

import (
	"os"
	"path/filepath"

	"github.com/Ludea/Sparus/config"
	"github.com/Ludea/Sparus/logging"
	flag "github.com/spf13/pflag"
)

func main() {
	output := flag.StringP("output", "o", filepath.Join("schema", "definitions", "sparus.schema.json"), "output file")
	flag.Parse()
	logger := logging.NewLogger("schema-generator")

	schemaBytes, err := config.GenerateSchema()
	if err != nil {
		logger.Fatalf("Error generating schema: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		logger.Fatalf("Error creating schema directory: %v", err)
	}
	if err := os.WriteFile(*output, append(schemaBytes, '\n'), 0o644); err != nil {
		logger.Fatalf("Error writing schema file: %v", err)
	}
	logger.WithField("path", *output).Info("Generated config schema")
}
