package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("light", &buf, WARN)

	l.Debug("скрыто %d", 1)
	l.Info("тоже скрыто")
	l.Warn("worker is closing, will wait")
	l.Error("failed: %v", "boom")

	out := buf.String()
	assert.NotContains(t, out, "скрыто")
	assert.Contains(t, out, "[WARN] [light] worker is closing, will wait")
	assert.Contains(t, out, "[ERROR] [light] failed: boom")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}

func TestManagerRegisterAndSetLevel(t *testing.T) {
	var buf bytes.Buffer
	lm := GetLoggerManager()
	lm.Register("test-component", NewWriterLogger("test-component", &buf, ERROR))

	GetComponentLogger("test-component").Info("до")
	assert.Empty(t, buf.String())

	assert.NoError(t, lm.SetLogLevel("test-component", TRACE, ERROR))
	GetComponentLogger("test-component").Trace("после")
	assert.Contains(t, buf.String(), "после")

	assert.Error(t, lm.SetLogLevel("missing-component", INFO, INFO))
}
