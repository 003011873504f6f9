package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tonscraper/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug"}, false},
		{"empty level defaults to info", &config.LoggingConfig{}, false},
		{"invalid level", &config.LoggingConfig{Level: "chatty"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"verbose", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expected, level)
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "warn")
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("shown")
	l.Error("also shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "shown", lines[0]["message"])
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "error", lines[1]["level"])
}

func TestWithFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	base, err := NewWithWriter(&buf, "debug")
	require.NoError(t, err)

	runLog := base.WithField("run_id", "abc").WithFields(map[string]interface{}{
		"page":    3,
		"elapsed": 1500 * time.Millisecond,
	})
	runLog.Info("page done")
	base.Info("base untouched")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "abc", lines[0]["run_id"])
	assert.EqualValues(t, 3, lines[0]["page"])
	assert.Contains(t, lines[0], "elapsed")
	assert.NotContains(t, lines[1], "run_id")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "info")
	require.NoError(t, err)

	l.WithError(errors.New("disk full")).Error("write failed")
	assert.Same(t, l, l.WithError(nil))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "disk full", lines[0]["error"])
}

func TestEventFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "info")
	require.NoError(t, err)

	l.InfoWithFields("summary", map[string]interface{}{
		"saved":   int64(7),
		"reasons": []string{"zero_heavy", "too_short"},
		"cause":   errors.New("boom"),
	})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.EqualValues(t, 7, lines[0]["saved"])
	assert.Equal(t, []interface{}{"zero_heavy", "too_short"}, lines[0]["reasons"])
	assert.Equal(t, "boom", lines[0]["cause"])
}

func TestGlobalLogger(t *testing.T) {
	require.NoError(t, Initialize(&config.LoggingConfig{Level: "error"}))
	assert.NotNil(t, GetLogger())
	assert.NotNil(t, WithField("k", "v"))
	assert.NotNil(t, WithError(errors.New("x")))
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.WithField("a", 1).Info("nothing")
	assert.NotNil(t, l.GetZerolog())
}

func TestTestLoggerCapturesDerivedFields(t *testing.T) {
	tl := NewTestLogger()
	child := tl.WithField("identifier", "0:abc").WithError(errors.New("timeout"))
	child.WarnWithFields("retrying", map[string]interface{}{"attempt": 2})
	tl.Info("plain")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "WARN", msgs[0].Level)
	assert.Equal(t, "0:abc", msgs[0].Fields["identifier"])
	assert.Equal(t, 2, msgs[0].Fields["attempt"])
	assert.EqualError(t, msgs[0].Error, "timeout")
	assert.True(t, tl.HasMessage("plain"))
	assert.False(t, tl.HasError())
	assert.Contains(t, tl.String(), "[WARN] retrying")

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}
