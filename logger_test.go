package devquote

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, ParseLogLevel("info"), ParseLogLevel("nonsense"))
	assert.NotEqual(t, ParseLogLevel("debug"), ParseLogLevel("error"))
	assert.Equal(t, ParseLogLevel("warn"), ParseLogLevel("WARNING"))
}

func TestLoggerSplitsStreams(t *testing.T) {
	var out, errOut bytes.Buffer
	l := newLoggerTo("test", "debug", &out, &errOut)

	l.Debugf("debug line")
	l.Infof("info line")
	l.Warnf("warn line")
	l.Errorf("error line")

	assert.Contains(t, out.String(), "debug line")
	assert.Contains(t, out.String(), "info line")
	assert.Contains(t, out.String(), "warn line")
	assert.NotContains(t, out.String(), "error line")
	assert.Contains(t, errOut.String(), "ERROR test")
	assert.Contains(t, errOut.String(), "error line")
	assert.NotContains(t, errOut.String(), "info line")
}

func TestLoggerRespectsLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	l := newLoggerTo("test", "warn", &out, &errOut)

	l.Infof("hidden")
	l.Warnf("shown")
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")
}
