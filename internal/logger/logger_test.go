package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONCarriesServiceField(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	l := New(&buf, "debug", "json")
	l.Info().Str("session_id", "abc").Msg("Session started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "exstem-sessions", line["service"])
	assert.Equal(t, "abc", line["session_id"])
	assert.Equal(t, "info", line["level"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	l := New(&buf, "loud", "json")
	l.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	l.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestNew_PrettyIsNotJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "pretty")
	l.Info().Msg("Sweep finished")

	assert.Contains(t, buf.String(), "Sweep finished")
	assert.False(t, json.Valid(buf.Bytes()))
}
