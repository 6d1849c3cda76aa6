package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, output *bytes.Buffer) []map[string]any {
	t.Helper()

	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(output.String()), "\n") {
		if line == "" {
			continue
		}
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		records = append(records, record)
	}
	return records
}

func TestNew_JSONLevels(t *testing.T) {
	tests := []struct {
		level      string
		wantLevels []string
	}{
		{level: "debug", wantLevels: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{level: "info", wantLevels: []string{"INFO", "WARN", "ERROR"}},
		{level: "WARNING", wantLevels: []string{"WARN", "ERROR"}},
		{level: "error", wantLevels: []string{"ERROR"}},
		{level: "bogus", wantLevels: []string{"INFO", "WARN", "ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			output := &bytes.Buffer{}
			logger, err := New(&Config{Level: tt.level, Format: "json", writer: output})
			require.NoError(t, err)

			logger.Debug("job reserved", slog.Uint64("job_id", 1))
			logger.Info("batch finished")
			logger.Warn("job has gone away")
			logger.Error("failed to release job")

			var got []string
			for _, record := range decodeLines(t, output) {
				got = append(got, record["level"].(string))
				assert.Contains(t, record, "time")
			}
			assert.Equal(t, tt.wantLevels, got)
		})
	}
}

func TestNew_Console(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{Level: "info", Format: "console", writer: output})
	require.NoError(t, err)

	logger.Info("entries reserved", slog.String("tube", "downloads"), slog.Int("entries", 3))

	assert.Contains(t, output.String(), "entries reserved")
	assert.Contains(t, output.String(), "downloads")
	assert.Contains(t, output.String(), "entries")
}

func TestNew_UnknownFormatFallsBackToJSON(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{Format: "xml", writer: output})
	require.NoError(t, err)

	logger.Info("run started")

	records := decodeLines(t, output)
	require.Len(t, records, 1)
	assert.Equal(t, "run started", records[0]["msg"])
}

func TestNew_EnableSource(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{Format: "json", EnableSource: true, writer: output})
	require.NoError(t, err)

	logger.Info("with source")

	records := decodeLines(t, output)
	require.Len(t, records, 1)
	assert.Contains(t, records[0], "source")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"fatal":   slog.LevelInfo,
	}

	for input, want := range tests {
		assert.Equal(t, want, parseLevel(input), input)
	}
}

func TestLogger_Component(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{Level: "info", Format: "json", writer: output})
	require.NoError(t, err)

	logger.Component("queue").Info("batch finished", slog.Uint64("job_id", 7))

	records := decodeLines(t, output)
	require.Len(t, records, 1)
	assert.Equal(t, "queue", records[0]["component"])
	assert.Equal(t, float64(7), records[0]["job_id"])
	assert.Equal(t, "batch finished", records[0]["msg"])
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")

	logger, err := New(&Config{Level: "info", Format: "console", Output: path})
	require.NoError(t, err)

	logger.Info("written to file", slog.String("tube", "jobs"))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Contains(t, string(data), "tube=jobs")
	// no color escape codes in files
	assert.NotContains(t, string(data), "\x1b[")
}

func TestNew_FileOutputUnwritable(t *testing.T) {
	logger, err := New(&Config{
		Output: filepath.Join(t.TempDir(), "missing", "dir", "bridge.log"),
	})

	require.Error(t, err)
	assert.Nil(t, logger)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestLogger_CloseWithoutFile(t *testing.T) {
	logger, err := New(&Config{Output: "stderr"})
	require.NoError(t, err)

	assert.NoError(t, logger.Close())
}
