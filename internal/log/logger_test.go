package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmke/unispi/internal/config"
)

func TestParseLevelValid(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"ERROR", logrus.ErrorLevel},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			level, err := parseLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestParseLevelInvalid(t *testing.T) {
	for _, input := range []string{"invalid", "trace", "fatal", ""} {
		_, err := parseLevel(input)
		assert.Error(t, err, input)
	}
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inform.log")
	logger, err := New(config.LogConfig{
		Level:  "warn",
		Format: "json",
		File:   config.FileOutputConfig{Enabled: true, Path: path},
	})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.WithField("mac", "aa:bb:cc:dd:ee:ff").Warn("unknown flags")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"mac":"aa:bb:cc:dd:ee:ff"`)
	assert.Contains(t, lines[0], `"level":"warning"`)
}

func TestNewInvalid(t *testing.T) {
	_, err := New(config.LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)

	_, err = New(config.LogConfig{Level: "info", Format: "text", File: config.FileOutputConfig{Enabled: true}})
	assert.Error(t, err)
}
