package contract

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the shared logger; it writes to stderr so stdout stays usable for tables and MCP.
var Logger = newLogger()

// exitFunc is swapped in tests.
var exitFunc = os.Exit

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetVerbosity sets the log level by name (debug, info, warn, error).
func SetVerbosity(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid verbosity '%s': %w", level, err)
	}
	Logger.SetLevel(lvl)
	return nil
}

// LogInfo logs an informational message.
func LogInfo(format string, args ...any) {
	Logger.Infof(format, args...)
}

// LogDebug logs a debug message.
func LogDebug(format string, args ...any) {
	Logger.Debugf(format, args...)
}

// LogWarn logs a warning message to stderr.
func LogWarn(msg string, err error) {
	if err == nil {
		Logger.Warn(msg)
		return
	}
	Logger.Warnf("%s: %v", msg, err)
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	Logger.Errorf("Fatal %s: %v", msg, err)
	exitFunc(1)
}
