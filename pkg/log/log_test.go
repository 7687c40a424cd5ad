package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DebugLevel,
		"DEBUG":   DebugLevel,
		"warn":    WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"info":    InfoLevel,
		"":        InfoLevel,
		"verbose": InfoLevel,
	}
	for input, want := range tests {
		assert.Equal(t, want, ParseLevel(input), "input %q", input)
	}
}

func TestInit_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	logger := WithComponent("reconciler")
	logger.Info().Str("occurrence_id", "occ-1").Msg("tick complete")
	logger.Debug().Msg("filtered out")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "reconciler", entry["component"])
	assert.Equal(t, "occ-1", entry["occurrence_id"])
	assert.Equal(t, "tick complete", entry["message"])
}

func TestContextLoggers(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	l := WithUserID("alice")
	l.Debug().Msg("seen")
	assert.Contains(t, buf.String(), `"user_id":"alice"`)

	buf.Reset()
	l = WithAttendanceID("att-1")
	l.Warn().Msg("stale")
	assert.Contains(t, buf.String(), `"attendance_id":"att-1"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)

	buf.Reset()
	l = WithOccurrenceID("occ-9")
	l.Info().Msg("resolved")
	assert.Contains(t, buf.String(), `"occurrence_id":"occ-9"`)
}
