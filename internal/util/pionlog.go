package util

import (
	"fmt"

	"github.com/pion/logging"
)

// PionLoggerFactory routes pion's internal logging into the pterm logger.
// Pion is chatty at info level, so info is demoted to debug; trace is dropped.
type PionLoggerFactory struct{}

// Compile-time interface check.
var _ logging.LoggerFactory = PionLoggerFactory{}

// NewLogger implements logging.LoggerFactory.
func (PionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{scope: scope}
}

type pionLogger struct {
	scope string
}

func (l pionLogger) prefix(msg string) string {
	return fmt.Sprintf("[pion/%s] %s", l.scope, msg)
}

func (l pionLogger) Trace(string)                      {}
func (l pionLogger) Tracef(string, ...interface{})     {}
func (l pionLogger) Debug(msg string)                  { LogDebug("%s", l.prefix(msg)) }
func (l pionLogger) Info(msg string)                   { LogDebug("%s", l.prefix(msg)) }
func (l pionLogger) Warn(msg string)                   { LogWarning("%s", l.prefix(msg)) }
func (l pionLogger) Error(msg string)                  { LogError("%s", l.prefix(msg)) }
func (l pionLogger) Warnf(f string, a ...interface{})  { l.Warn(fmt.Sprintf(f, a...)) }
func (l pionLogger) Errorf(f string, a ...interface{}) { l.Error(fmt.Sprintf(f, a...)) }

// Debugf and Infof skip formatting unless debug output is on; pion calls them
// on every packet-level event.
func (l pionLogger) Debugf(f string, a ...interface{}) {
	if DebugEnabled() {
		l.Debug(fmt.Sprintf(f, a...))
	}
}

func (l pionLogger) Infof(f string, a ...interface{}) {
	if DebugEnabled() {
		l.Info(fmt.Sprintf(f, a...))
	}
}
