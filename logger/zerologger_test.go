package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	log := NewZerologLogger(&Config{
		Level:   level,
		Format:  JSONFormat,
		Outputs: []io.Writer{buf},
	})
	return log, buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestZerologLogger_TypedFields(t *testing.T) {
	log, buf := newBufferLogger(TraceLevel)

	log.Info("token issued",
		String("jti", "abc"),
		Int("count", 3),
		Bool("active", true),
		Duration("ttl", time.Minute),
		Err(errors.New("boom")))

	entry := lastLine(t, buf)
	assert.Equal(t, "token issued", entry["message"])
	assert.Equal(t, "abc", entry["jti"])
	assert.Equal(t, float64(3), entry["count"])
	assert.Equal(t, true, entry["active"])
	assert.Equal(t, "boom", entry["error"])
}

func TestZerologLogger_LevelFiltering(t *testing.T) {
	log, buf := newBufferLogger(WarnLevel)

	log.Debug("hidden")
	log.Info("hidden too")
	assert.Zero(t, buf.Len())

	log.Warn("visible")
	assert.NotZero(t, buf.Len())
}

func TestZerologLogger_Subsystem(t *testing.T) {
	log, buf := newBufferLogger(TraceLevel)

	log.WithSubsystem("store").Info("ready")

	entry := lastLine(t, buf)
	assert.Equal(t, "store", entry["module"])
}

func TestZerologLogger_NestedSubsystem(t *testing.T) {
	log, buf := newBufferLogger(TraceLevel)

	log.WithSubsystem("store").WithSubsystem("redis").Info("ready")

	entry := lastLine(t, buf)
	assert.Equal(t, "store.redis", entry["module"])
}

func TestZerologLogger_IsLevelEnabled(t *testing.T) {
	log, _ := newBufferLogger(InfoLevel)

	assert.False(t, log.IsLevelEnabled(DebugLevel))
	assert.True(t, log.IsLevelEnabled(InfoLevel))
	assert.True(t, log.IsLevelEnabled(ErrorLevel))
}
