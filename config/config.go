package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/pkg/paths"
	"github.com/Ludea/Sparus/util/pathutil"
	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

//go:embed Sparus.json
var sampleConfig []byte

const (
	DefaultLauncherURL    = "http://127.0.0.1:8112"
	DefaultPluginsURL     = "http://127.0.0.1:8012"
	DefaultLauncherName   = "kataster"
	DefaultInitialVersion = "0.0.0"
	DefaultArtifactPort   = 8012
)

// Config is the launcher configuration document (Sparus.json).
// Sections that are not first-class fields (logging, and anything added by
// future components) are kept raw in Sections and decoded on demand with
// UnmarshalSection.
type Config struct {
	LauncherURL    string `json:"launcher_url,omitempty" yaml:"launcher_url,omitempty" mapstructure:"launcher_url" jsonschema:"description=Control plane address used for the plugin event stream,default=http://127.0.0.1:8112"`
	PluginsURL     string `json:"plugins_url,omitempty" yaml:"plugins_url,omitempty" mapstructure:"plugins_url" jsonschema:"description=Base URL that plugin artifacts are fetched from,default=http://127.0.0.1:8012"`
	LauncherName   string `json:"launcher_name,omitempty" yaml:"launcher_name,omitempty" mapstructure:"launcher_name" jsonschema:"description=Repository name announced to the control plane,default=kataster"`
	InitialVersion string `json:"initial_version,omitempty" yaml:"initial_version,omitempty" mapstructure:"initial_version" jsonschema:"description=Version assumed for a workspace without update state,default=0.0.0"`
	ArtifactPort   int    `json:"artifact_port,omitempty" yaml:"artifact_port,omitempty" mapstructure:"artifact_port" jsonschema:"description=Loopback port of the local artifact server,minimum=1,maximum=65535,default=8012"`
	WorkspacePath  string `json:"workspace_path,omitempty" yaml:"workspace_path,omitempty" mapstructure:"workspace_path" jsonschema:"description=Game workspace directory (defaults to the working directory)"`

	Sections map[string]interface{} `json:"-" yaml:"-" mapstructure:",remain"`

	// path is the file this configuration was loaded from, if any.
	path string
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.LauncherURL == "" {
		c.LauncherURL = DefaultLauncherURL
	}
	if c.PluginsURL == "" {
		c.PluginsURL = DefaultPluginsURL
	}
	if c.LauncherName == "" {
		c.LauncherName = DefaultLauncherName
	}
	if c.InitialVersion == "" {
		c.InitialVersion = DefaultInitialVersion
	}
	if c.ArtifactPort == 0 {
		c.ArtifactPort = DefaultArtifactPort
	}
	if c.WorkspacePath == "" {
		if wd, err := os.Getwd(); err == nil {
			c.WorkspacePath = wd
		}
	} else if expanded, err := pathutil.Expand(c.WorkspacePath); err == nil {
		c.WorkspacePath = expanded
	}
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Load reads a configuration file. The format is chosen by extension:
// .json (comments and trailing commas allowed), .yml/.yaml and .toml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sparuserrors.IO("read config", path, err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	cfg.path = path
	return cfg, nil
}

// LoadDefault loads the configuration from its standard location. A missing
// file yields the defaults.
func LoadDefault() (*Config, error) {
	path := paths.ConfigFile()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		cfg.path = path
		return cfg, nil
	}
	return Load(path)
}

// Parse decodes, validates and defaults a configuration document.
func Parse(data []byte, ext string) (*Config, error) {
	raw, err := decodeDocument(data, ext)
	if err != nil {
		return nil, err
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, sparuserrors.Wrap(err, sparuserrors.KindConfig, "failed to decode config")
	}
	cfg.SetDefaults()
	return cfg, nil
}

func decodeDocument(data []byte, ext string) (map[string]interface{}, error) {
	raw := map[string]interface{}{}
	switch strings.ToLower(ext) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, sparuserrors.Wrap(err, sparuserrors.KindConfig, "malformed YAML config")
		}
	case ".toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, sparuserrors.Wrap(err, sparuserrors.KindConfig, "malformed TOML config")
		}
	default:
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.UseNumber()
		if err := decoder.Decode(&raw); err != nil {
			return nil, sparuserrors.JSON("config", err)
		}
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	return raw, nil
}

// UnmarshalSection decodes a raw configuration section into target, which
// must be a pointer. A missing section leaves target untouched.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalSection("logging", &logCfg)
func (c *Config) UnmarshalSection(key string, target interface{}) error {
	section, ok := c.Sections[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(section); err != nil {
		return fmt.Errorf("failed to decode config section '%s': %w", key, err)
	}
	return nil
}

// Get returns a top-level value by its document key. First-class fields are
// reported with defaults applied.
func (c *Config) Get(key string) (interface{}, bool) {
	switch key {
	case "launcher_url":
		return c.LauncherURL, true
	case "plugins_url":
		return c.PluginsURL, true
	case "launcher_name":
		return c.LauncherName, true
	case "initial_version":
		return c.InitialVersion, true
	case "artifact_port":
		return c.ArtifactPort, true
	case "workspace_path":
		return c.WorkspacePath, true
	}
	v, ok := c.Sections[key]
	return v, ok
}

// GetString is Get formatted as a string; missing keys yield "".
func (c *Config) GetString(key string) string {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// EnsureSeeded writes the packaged sample configuration to path when no file
// exists there yet. It reports whether a file was written.
func EnsureSeeded(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, sparuserrors.IO("stat", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, sparuserrors.IO("mkdir", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, sampleConfig, 0o644); err != nil {
		return false, sparuserrors.IO("write", path, err)
	}
	return true, nil
}

// Sample returns the packaged sample configuration.
func Sample() []byte {
	return append([]byte(nil), sampleConfig...)
}
