package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJSONWithComments(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Sparus.json", `{
  // remote control plane
  "launcher_url": "https://control.example.com:8112",
  "launcher_name": "other",
  "artifact_port": 9000,
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://control.example.com:8112", cfg.LauncherURL)
	assert.Equal(t, "other", cfg.LauncherName)
	assert.Equal(t, 9000, cfg.ArtifactPort)
	assert.Equal(t, DefaultPluginsURL, cfg.PluginsURL)
	assert.Equal(t, DefaultInitialVersion, cfg.InitialVersion)
	assert.Equal(t, path, cfg.Path())
}

func TestLoadYAMLAndTOML(t *testing.T) {
	dir := t.TempDir()

	yamlPath := writeFile(t, dir, "Sparus.yml", "plugins_url: http://cdn.example.com\nartifact_port: 8013\n")
	cfg, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.example.com", cfg.PluginsURL)
	assert.Equal(t, 8013, cfg.ArtifactPort)

	tomlPath := writeFile(t, dir, "Sparus.toml", "initial_version = \"1.0.0\"\nartifact_port = 8014\n")
	cfg, err = Load(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", cfg.InitialVersion)
	assert.Equal(t, 8014, cfg.ArtifactPort)
}

func TestLoadRejectsInvalidDocuments(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(writeFile(t, dir, "bad.json", `{"artifact_port": "eighty"}`))
	require.Error(t, err)
	assert.Equal(t, sparuserrors.KindConfig, sparuserrors.GetKind(err))

	_, err = Load(writeFile(t, dir, "range.json", `{"artifact_port": 70000}`))
	require.Error(t, err)
	assert.Equal(t, sparuserrors.KindConfig, sparuserrors.GetKind(err))

	_, err = Load(writeFile(t, dir, "syntax.json", `{"launcher_url": `))
	require.Error(t, err)
	assert.Equal(t, sparuserrors.KindJSON, sparuserrors.GetKind(err))

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Equal(t, sparuserrors.KindIO, sparuserrors.GetKind(err))
}

func TestUnmarshalSection(t *testing.T) {
	cfg, err := Parse([]byte(`{"logging": {"level": "debug", "report_caller": true}}`), ".json")
	require.NoError(t, err)

	var section struct {
		Level        string `json:"level"`
		ReportCaller bool   `json:"report_caller"`
	}
	require.NoError(t, cfg.UnmarshalSection("logging", &section))
	assert.Equal(t, "debug", section.Level)
	assert.True(t, section.ReportCaller)

	// Missing sections leave the target untouched.
	section.Level = "keep"
	require.NoError(t, cfg.UnmarshalSection("absent", &section))
	assert.Equal(t, "keep", section.Level)
}

func TestGet(t *testing.T) {
	cfg, err := Parse([]byte(`{"launcher_name": "kataster", "extra": "value"}`), ".json")
	require.NoError(t, err)

	assert.Equal(t, "kataster", cfg.GetString("launcher_name"))
	assert.Equal(t, "8012", cfg.GetString("artifact_port"))
	assert.Equal(t, "value", cfg.GetString("extra"))

	_, ok := cfg.Get("nope")
	assert.False(t, ok)
	assert.Equal(t, "", cfg.GetString("nope"))
}

func TestEnsureSeeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "Sparus.json")

	written, err := EnsureSeeded(path)
	require.NoError(t, err)
	assert.True(t, written)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultLauncherName, cfg.LauncherName)

	var logCfg struct {
		Level string `json:"level"`
	}
	require.NoError(t, cfg.UnmarshalSection("logging", &logCfg))
	assert.Equal(t, "info", logCfg.Level)

	written, err = EnsureSeeded(path)
	require.NoError(t, err)
	assert.False(t, written)
}

func TestLoadDefaultFallsBackToDefaults(t *testing.T) {
	t.Setenv("SPARUS_CONFIG", filepath.Join(t.TempDir(), "absent.json"))

	cfg, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, DefaultLauncherURL, cfg.LauncherURL)
	assert.Equal(t, DefaultArtifactPort, cfg.ArtifactPort)
}

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"launcher_url"`)
	assert.Contains(t, string(data), `"artifact_port"`)
	assert.NotContains(t, string(data), `"Sections"`)
}

func TestWatcherReloads(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Sparus.json", `{"launcher_name": "first"}`)

	var reloaded atomic.Value
	w, err := NewWatcher(path, 20*time.Millisecond, nil, func(cfg *Config) {
		reloaded.Store(cfg.LauncherName)
	})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.NoError(t, os.WriteFile(path, []byte(`{"launcher_name": "second"}`), 0o644))

	assert.Eventually(t, func() bool {
		v, _ := reloaded.Load().(string)
		return v == "second"
	}, 5*time.Second, 20*time.Millisecond)
}
