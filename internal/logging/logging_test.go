package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", Writer: &buf, Service: "dashauth"})

	logger.Debug().Str("key", "value").Msg("hello")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "debug", event["level"])
	assert.Equal(t, "dashauth", event["service"])
	assert.Equal(t, "value", event["key"])
	assert.Equal(t, "hello", event["message"])
	assert.Contains(t, event, "time")
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "WARN", Writer: &buf})

	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "loud", Writer: &buf})

	logger.Debug().Msg("dropped")
	logger.Info().Msg("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestComponentTagsEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New(Config{Writer: &buf}), "session")

	logger.Info().Msg("x")
	assert.Contains(t, buf.String(), `"component":"session"`)
}
