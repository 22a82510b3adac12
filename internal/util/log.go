package util

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by pterm prefixed printers.
// All output goes to stderr by default (pterm's default).

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// ──────────────────────────────────────────────────────────────────────────────
// pion log bridge
// ──────────────────────────────────────────────────────────────────────────────

// PionLoggerFactory routes pion's internal logging through the pterm logger.
// Trace output is folded into debug.
type PionLoggerFactory struct{}

// NewLogger implements logging.LoggerFactory.
func (PionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{scope: scope}
}

type pionLogger struct {
	scope string
}

func (l pionLogger) prefix(msg string) string { return "[pion/" + l.scope + "] " + msg }

func (l pionLogger) Trace(msg string)                          { LogDebug("%s", l.prefix(msg)) }
func (l pionLogger) Tracef(format string, args ...interface{}) { LogDebug("%s", l.prefix(fmt.Sprintf(format, args...))) }
func (l pionLogger) Debug(msg string)                          { LogDebug("%s", l.prefix(msg)) }
func (l pionLogger) Debugf(format string, args ...interface{}) { LogDebug("%s", l.prefix(fmt.Sprintf(format, args...))) }
func (l pionLogger) Info(msg string)                           { LogDebug("%s", l.prefix(msg)) }
func (l pionLogger) Infof(format string, args ...interface{})  { LogDebug("%s", l.prefix(fmt.Sprintf(format, args...))) }
func (l pionLogger) Warn(msg string)                           { LogWarning("%s", l.prefix(msg)) }
func (l pionLogger) Warnf(format string, args ...interface{})  { LogWarning("%s", l.prefix(fmt.Sprintf(format, args...))) }
func (l pionLogger) Error(msg string)                          { LogError("%s", l.prefix(msg)) }
func (l pionLogger) Errorf(format string, args ...interface{}) { LogError("%s", l.prefix(fmt.Sprintf(format, args...))) }
