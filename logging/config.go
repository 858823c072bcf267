package logging

// Config defines the `logging` section of Sparus.json.
type Config struct {
	// Level is the minimum log level to output (e.g., "debug", "info", "warn", "error").
	// Can be overridden by the SPARUS_LOG_LEVEL environment variable.
	Level string `json:"level,omitempty" yaml:"level" jsonschema:"enum=trace,enum=debug,enum=info,enum=warn,enum=error"`

	// ReportCaller, if true, includes the file, line, and function name in the log output.
	// Can be enabled with the SPARUS_LOG_CALLER=true environment variable.
	ReportCaller bool `json:"report_caller,omitempty" yaml:"report_caller"`

	// File configures logging to a file.
	File FileSinkConfig `json:"file,omitempty" yaml:"file"`

	// Format configures the appearance of the log output.
	Format FormatConfig `json:"format,omitempty" yaml:"format"`
}

// FileSinkConfig configures the file logging sink.
type FileSinkConfig struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled"`
	// Path is the full path to the log file.
	Path string `json:"path,omitempty" yaml:"path"`
}

// FormatConfig controls the log output format.
type FormatConfig struct {
	// Preset can be "default" (rich text), "simple" (minimal text), or "json".
	Preset           string `json:"preset,omitempty" yaml:"preset" jsonschema:"enum=default,enum=simple,enum=json"`
	DisableTimestamp bool   `json:"disable_timestamp,omitempty" yaml:"disable_timestamp"`
	DisableComponent bool   `json:"disable_component,omitempty" yaml:"disable_component"`
	// StructuredToStderr controls when structured logs are sent to stderr.
	// Can be "auto" (default), "always", or "never".
	StructuredToStderr string `json:"structured_to_stderr,omitempty" yaml:"structured_to_stderr" jsonschema:"enum=auto,enum=always,enum=never"`
}
