package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/scanlens/pkg/config"
)

func TestNew_FileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "scanlens.log")
	logger, closer, err := New(config.LogConfig{
		Level:     "debug",
		Format:    "json",
		Output:    "file",
		FilePath:  path,
		MaxSizeMB: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	Adapt(logger).Warn("bandit: %d findings dropped", 3)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "bandit: 3 findings dropped", entry["message"])
	assert.Equal(t, "warning", entry["level"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanlens.log")
	logger, closer, err := New(config.LogConfig{Level: "warn", Format: "text", Output: "file", FilePath: path})
	require.NoError(t, err)

	l := Adapt(logger)
	l.Info("hidden")
	l.Error("shown")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LogConfig
	}{
		{"bad level", config.LogConfig{Level: "loud"}},
		{"bad format", config.LogConfig{Level: "info", Format: "xml"}},
		{"bad output", config.LogConfig{Level: "info", Output: "syslog"}},
		{"file without path", config.LogConfig{Level: "info", Output: "file"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	logger, closer, err := New(config.Default().Log)
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.Equal(t, os.Stderr, logger.Out)
}
