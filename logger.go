package devquote

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/labstack/gommon/log"
)

const logHeader = "${time_rfc3339} ${level} ${prefix}"

// NewLogger returns a leveled logger writing errors to stderr and everything
// else to stdout. It is the same logger type Echo uses, so c.Logger() lines
// share its format.
func NewLogger(prefix, level string) *log.Logger {
	return newLoggerTo(prefix, level, os.Stdout, os.Stderr)
}

func newLoggerTo(prefix, level string, out, errOut io.Writer) *log.Logger {
	l := log.New(prefix)
	l.SetHeader(logHeader)
	l.SetOutput(&levelWriter{out: out, errOut: errOut})
	l.SetLevel(ParseLogLevel(level))
	return l
}

// levelWriter splits log entries by the level field of logHeader. gommon
// writes each entry with a single Write call.
type levelWriter struct {
	out    io.Writer
	errOut io.Writer
}

func (w *levelWriter) Write(p []byte) (int, error) {
	fields := bytes.Fields(p)
	if len(fields) > 1 {
		switch string(fields[1]) {
		case "ERROR", "FATAL", "PANIC":
			return w.errOut.Write(p)
		}
	}
	return w.out.Write(p)
}

// ParseLogLevel maps debug, info, warn and error to gommon levels.
// Anything else means info.
func ParseLogLevel(level string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}
