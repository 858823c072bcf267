package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Setenv("SPARUS_HOME", t.TempDir())

	logger := NewLogger("test-component")
	require.NotNil(t, logger)
	assert.Equal(t, "test-component", logger.Data["component"])

	// Same component returns the cached entry
	assert.Same(t, logger, NewLogger("test-component"))
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer

	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&TextFormatter{Config: FormatConfig{}})

	logger.WithField("component", "updater").WithField("version", "1.2.0").Info("Update finished")

	output := buf.String()
	assert.Contains(t, output, "[INFO]")
	assert.Contains(t, output, "[updater]")
	assert.Contains(t, output, "Update finished")
	assert.Contains(t, output, "version=1.2.0")
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name    string
		config  FormatConfig
		level   logrus.Level
		want    []string
		notWant []string
	}{
		{
			name:   "default format",
			config: FormatConfig{},
			level:  logrus.WarnLevel,
			want:   []string{"2024-01-02 03:04:05", "[WARN]", "[sync]", "plugin skipped", "plugin=hello"},
		},
		{
			name:    "no timestamp or component",
			config:  FormatConfig{DisableTimestamp: true, DisableComponent: true},
			level:   logrus.InfoLevel,
			want:    []string{"[INFO]", "plugin skipped"},
			notWant: []string{"2024-01-02", "[sync]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &logrus.Entry{
				Logger:  logrus.New(),
				Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
				Level:   tt.level,
				Message: "plugin skipped",
				Data:    logrus.Fields{"component": "sync", "plugin": "hello"},
			}
			out, err := (&TextFormatter{Config: tt.config}).Format(entry)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, string(out), w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, string(out), nw)
			}
			assert.True(t, strings.HasSuffix(string(out), "\n"))
		})
	}
}

func TestFileSinkAndJSONPreset(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "sparus.log")
	cfg := Config{
		Level:  "debug",
		File:   FileSinkConfig{Enabled: true, Path: logPath},
		Format: FormatConfig{Preset: "json", StructuredToStderr: "never"},
	}

	entry := newLogger("file-test", cfg, os.Stderr)
	assert.Equal(t, logrus.DebugLevel, entry.Logger.GetLevel())
	entry.Debug("written to file")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	assert.Equal(t, "written to file", line["msg"])
	assert.Equal(t, "file-test", line["component"])
}

func TestLevelFromEnvironment(t *testing.T) {
	t.Setenv("SPARUS_LOG_LEVEL", "error")
	entry := newLogger("env-test", Config{Level: "debug", Format: FormatConfig{StructuredToStderr: "never"}}, os.Stderr)
	assert.Equal(t, logrus.ErrorLevel, entry.Logger.GetLevel())
}
