package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONOutputEmitsStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	Logger.Info().Str("foo", "bar").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "bar", entry["foo"])
}

func TestInitConsoleOutputIsHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: false, Output: &buf})

	Logger.Info().Msg("hello console")

	var entry map[string]any
	assert.Error(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, buf.String(), "hello console")
}

func TestInitDefaultsUnknownLevelToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: Level("bogus"), JSONOutput: true, Output: &buf})

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestInitRespectsEachDocumentedLevel(t *testing.T) {
	cases := map[Level]zerolog.Level{
		DebugLevel: zerolog.DebugLevel,
		InfoLevel:  zerolog.InfoLevel,
		WarnLevel:  zerolog.WarnLevel,
		ErrorLevel: zerolog.ErrorLevel,
	}
	var buf bytes.Buffer
	for level, want := range cases {
		Init(Config{Level: level, JSONOutput: true, Output: &buf})
		assert.Equal(t, want, zerolog.GlobalLevel(), "level=%s", level)
	}
}

func TestWithComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	WithComponent("api").Info().Msg("started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "api", entry["component"])
}

func TestWithHelpersAddExpectedFields(t *testing.T) {
	cases := []struct {
		name    string
		field   string
		apply   func(string) zerolog.Logger
		value   string
	}{
		{"node", "node_id", WithNodeID, "node-1"},
		{"service", "service_id", WithServiceID, "svc-1"},
		{"task", "task_id", WithTaskID, "task-1"},
		{"partition", "partition_key", WithPartitionKey, "p-1"},
		{"tenant", "tenant_id", WithTenant, "acme"},
	}
	var buf bytes.Buffer
	for _, tc := range cases {
		buf.Reset()
		Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})
		tc.apply(tc.value).Info().Msg("x")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, tc.value, entry[tc.field], "case=%s", tc.name)
	}
}

func TestInitDefaultsOutputToStdoutWhenNil(t *testing.T) {
	Init(Config{Level: InfoLevel, JSONOutput: true})
	assert.NotPanics(t, func() { Logger.Info().Msg("goes to stdout") })
}

func TestPackageLevelHelpersWriteThroughGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	Info("info line")
	Debug("debug line")
	Warn("warn line")
	Error("error line")

	out := buf.String()
	for _, want := range []string{"info line", "debug line", "warn line", "error line"} {
		assert.True(t, strings.Contains(out, want), "expected output to contain %q, got %q", want, out)
	}
}
