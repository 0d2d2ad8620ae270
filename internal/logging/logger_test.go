package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"smarterdog/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(lc config.LoggingConfig) *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:        "smarterdog",
			Environment: "test",
			Version:     "1.0.0",
		},
		Business: config.BusinessConfig{Name: "Smarter Dog", Timezone: "Europe/London"},
		Logging:  lc,
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("DefaultStdout", func(t *testing.T) {
		logger, closer, err := New(testConfig(config.LoggingConfig{Level: "info", Output: "stdout"}))
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})

	t.Run("Stderr", func(t *testing.T) {
		logger, closer, err := New(testConfig(config.LoggingConfig{Level: "debug", Output: "stderr"}))
		require.NoError(t, err)
		assert.Nil(t, closer)
		assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
	})

	t.Run("Console", func(t *testing.T) {
		logger, closer, err := New(testConfig(config.LoggingConfig{Level: "warn", Format: "console"}))
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
	})

	t.Run("File", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "salon.log")
		logger, closer, err := New(testConfig(config.LoggingConfig{Level: "error", Output: "file", FilePath: logPath}))
		require.NoError(t, err)
		require.NotNil(t, closer)

		logger.Error().Msg("boom")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"app":"smarterdog"`)
		assert.Contains(t, string(data), `"salon":"Smarter Dog"`)
		assert.Contains(t, string(data), `"message":"boom"`)
	})

	t.Run("FileMissingPath", func(t *testing.T) {
		_, _, err := New(testConfig(config.LoggingConfig{Output: "file"}))
		assert.Error(t, err)
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		logger, _, err := New(testConfig(config.LoggingConfig{Level: "invalid"}))
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})
}

func TestNewLoggerSalonTimezone(t *testing.T) {
	t.Cleanup(func() { zerolog.TimestampFunc = time.Now })

	logPath := filepath.Join(t.TempDir(), "tz.log")
	logger, closer, err := New(testConfig(config.LoggingConfig{Output: "file", FilePath: logPath}))
	require.NoError(t, err)
	logger.Info().Msg("tick")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))

	ts, err := time.Parse(time.RFC3339Nano, entry["time"].(string))
	require.NoError(t, err)
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	_, want := ts.In(london).Zone()
	_, got := ts.Zone()
	assert.Equal(t, want, got)
}

func TestNewLoggerDebugBurst(t *testing.T) {
	t.Cleanup(func() { zerolog.TimestampFunc = time.Now })

	logPath := filepath.Join(t.TempDir(), "burst.log")
	logger, closer, err := New(testConfig(config.LoggingConfig{Level: "debug", Output: "file", FilePath: logPath, DebugBurst: 2}))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		logger.Debug().Int("i", i).Msg("wizard step")
	}
	logger.Info().Msg("kept")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "wizard step"))
	assert.Contains(t, string(data), `"message":"kept"`)
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	Component(&base, "wizard").Info().Msg("step")
	assert.Contains(t, buf.String(), `"component":"wizard"`)
}
