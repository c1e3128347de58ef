// Package logging builds the leveled logger shared by the server components.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/labstack/gommon/log"
)

const header = "${time_rfc3339} ${level} ${prefix}"

// ParseLevel maps a configuration string onto a gommon level
func ParseLevel(s string) (log.Lvl, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG, nil
	case "", "info":
		return log.INFO, nil
	case "warn", "warning":
		return log.WARN, nil
	case "error":
		return log.ERROR, nil
	case "off":
		return log.OFF, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// New creates a logger writing to w at the given level
func New(prefix, level string, w io.Writer) (*log.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	l := log.New(prefix)
	l.SetHeader(header)
	l.SetOutput(w)
	l.SetLevel(lvl)
	l.DisableColor()

	return l, nil
}

// Discard returns a logger that drops everything, for tests
func Discard() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	l.SetLevel(log.OFF)
	return l
}
