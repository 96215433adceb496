package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := SetupWriter(&buf, "warn", "json")

	l.Info("claim_won", "request_id", "r1")
	assert.Zero(t, buf.Len(), "info must be filtered at warn level")

	l.Warn("routing_failed", "centre_id", "c1")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "routing_failed", line["msg"])
	assert.Equal(t, "c1", line["centre_id"])

	assert.Same(t, l, L())
}
