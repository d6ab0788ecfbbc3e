package lumen

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type DefaultLogger struct {
	mu    sync.Mutex
	debug bool
	out   *log.Logger
}

func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          prefix,
	})
	if debug {
		l.SetLevel(log.DebugLevel)
	}
	return &DefaultLogger{
		debug: debug,
		out:   l,
	}
}

func (l *DefaultLogger) DebugEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debug
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	l.mu.Lock()
	l.debug = enabled
	if enabled {
		l.out.SetLevel(log.DebugLevel)
	} else {
		l.out.SetLevel(log.InfoLevel)
	}
	l.mu.Unlock()
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	l.out.Debugf(format, args...)
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.out.Infof(format, args...)
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.out.Warnf(format, args...)
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.out.Errorf(format, args...)
}

type nopLogger struct{}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger { return &nopLogger{} }

func (n *nopLogger) DebugEnabled() bool                { return false }
func (n *nopLogger) SetDebug(enabled bool)             {}
func (n *nopLogger) Debugf(format string, args ...any) {}
func (n *nopLogger) Infof(format string, args ...any)  {}
func (n *nopLogger) Warnf(format string, args ...any)  {}
func (n *nopLogger) Errorf(format string, args ...any) {}
