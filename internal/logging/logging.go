// Package logging builds the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to stderr. format is "json" or "text".
func New(level, format string) (*logrus.Logger, error) {
	return NewWithOutput(os.Stderr, level, format)
}

func NewWithOutput(w io.Writer, level, format string) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(w)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
