package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "json", Output: &buf})

	l.Info().Msg("dropped")
	l.Warn().Int("skipped", 3).Msg("rows skipped")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "rows skipped", entry["message"])
	assert.Equal(t, float64(3), entry["skipped"])
	assert.Equal(t, "festival-feed", entry["service"])
}

func TestNewTextAndBadLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "loud", Format: "text", Output: &buf})
	l.Debug().Msg("hidden")
	l.Info().Msg("visible")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}
