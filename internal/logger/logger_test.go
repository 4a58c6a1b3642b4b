package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologAdapterWritesStructuredEvents(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, zerolog.InfoLevel)

	log.Info("segment", "threshold applied", map[string]interface{}{"foreground": 42})
	log.Debug("segment", "hidden", nil)
	log.Error("tally", errors.New("boom"), map[string]interface{}{"group": "A1"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "segment", first["component"])
	assert.Equal(t, "threshold applied", first["message"])
	assert.EqualValues(t, 42, first["foreground"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "boom", second["error"])
	assert.Equal(t, "A1", second["group"])
}

func TestOrNop(t *testing.T) {
	assert.NotPanics(t, func() {
		OrNop(nil).Info("x", "y", nil)
		Nop().Warning("x", "y", map[string]interface{}{"a": 1})
	})
}
