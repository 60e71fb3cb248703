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
	"notecrawler/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level", cfg: &config.LoggingConfig{Level: "debug"}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "chatty"}, wantErr: true},
		{
			name: "file output",
			cfg:  &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "crawl.log")},
		},
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
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &event))
		events = append(events, event)
	}
	return events
}

func TestWithFieldsAreInherited(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "debug")
	require.NoError(t, err)

	base := l.WithField("account", "pku")
	base.WithField("item_id", "n1").Info("first")
	base.Info("second")

	events := decodeLines(t, &buf)
	require.Len(t, events, 2)
	assert.Equal(t, "pku", events[0]["account"])
	assert.Equal(t, "n1", events[0]["item_id"])
	assert.Equal(t, "pku", events[1]["account"])
	_, leaked := events[1]["item_id"]
	assert.False(t, leaked, "child fields must not leak into the parent")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "warn")
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("hidden too")
	l.WithError(errors.New("boom")).Warn("shown")

	events := decodeLines(t, &buf)
	require.Len(t, events, 1)
	assert.Equal(t, "shown", events[0]["message"])
	assert.Equal(t, "boom", events[0]["error"])
}

func TestStructuredFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "info")
	require.NoError(t, err)

	l.InfoWithFields("typed", map[string]interface{}{
		"count":   3,
		"total":   int64(12000),
		"ok":      true,
		"tags":    []string{"a", "b"},
		"elapsed": 1500 * time.Millisecond,
	})

	events := decodeLines(t, &buf)
	require.Len(t, events, 1)
	assert.EqualValues(t, 3, events[0]["count"])
	assert.EqualValues(t, 12000, events[0]["total"])
	assert.Equal(t, true, events[0]["ok"])
	assert.Len(t, events[0]["tags"], 2)
}

func TestDomainHelpers(t *testing.T) {
	tl := NewTestLogger()

	LogRateLimit(tl, "detail", "n1", 2, 30*time.Second)
	LogItem(tl, "pku", "n2", errors.New("decode failed"))
	LogItem(tl, "pku", "n3", nil)
	LogPage(tl, "pku", 1, 30, 12, true)
	LogFlush(tl, "pku", 10, "size")
	LogAccountSummary(tl, "pku", 3, 42, 7, time.Minute, nil)
	LogAccountSummary(tl, "thu", 1, 0, 0, time.Second, errors.New("listing failed"))

	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 2)
	assert.Equal(t, "rate_limited", warns[0].Fields["action"])
	assert.Equal(t, 2, warns[0].Fields["attempt"])
	assert.EqualError(t, warns[1].Error, "decode failed")

	assert.True(t, tl.HasMessage("Item enriched"))
	assert.True(t, tl.HasMessage("Batch flushed"))
	assert.True(t, tl.HasError())

	errs := tl.GetMessagesByLevel("ERROR")
	require.Len(t, errs, 1)
	assert.Equal(t, "thu", errs[0].Fields["account"])
}

func TestTestLoggerClear(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("k", "v").Info("hello")
	require.Len(t, tl.GetMessages(), 1)
	assert.Equal(t, "v", tl.GetMessages()[0].Fields["k"])

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.WithField("a", 1).WithError(errors.New("x")).Error("ignored")
		l.GetZerolog().Info().Msg("ignored")
	})
}
