package build

import (
	"fmt"
	"io"
	"strings"

	"github.com/btcsuite/btclog"
)

// LogType selects where log output goes. It is fixed at build time by the
// "stdlog" and "nolog" tags.
type LogType byte

const (
	// LogTypeNone drops all log output.
	LogTypeNone LogType = iota

	// LogTypeStdErr writes log output to stderr only.
	LogTypeStdErr

	// LogTypeDefault writes log output to stderr and to the log file, if
	// one was opened.
	LogTypeDefault
)

// String returns a human readable identifier for the logging type.
func (t LogType) String() string {
	switch t {
	case LogTypeNone:
		return "none"
	case LogTypeStdErr:
		return "stderr"
	case LogTypeDefault:
		return "default"
	default:
		return "unknown"
	}
}

// LogWriter is the io.Writer behind every logging backend. Its Write method
// is provided by the file matching the active build tags.
type LogWriter struct {
	// RotatorPipe feeds the log rotator. It stays nil until a log file is
	// opened and is ignored by the stdlog and nolog builds.
	RotatorPipe *io.PipeWriter
}

// NewSubLogger returns the logger for subsystem. Loggers come from
// genSubLogger when the binary supplies one. Development test builds get a
// standalone stderr logger at LogLevel. Anything else is disabled.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	shared := Deployment == Production || LoggingType == LogTypeDefault
	switch {
	case shared && genSubLogger != nil:
		return genSubLogger(subsystem)

	case Deployment == Development && LoggingType == LogTypeStdErr:
		logger := btclog.NewBackend(&LogWriter{}).Logger(subsystem)
		level, _ := btclog.LevelFromString(LogLevel)
		logger.SetLevel(level)

		return logger

	default:
		return btclog.Disabled
	}
}

// SubLoggers maps subsystem names to their loggers.
type SubLoggers map[string]btclog.Logger

// LeveledSubLogger is a set of subsystem loggers whose levels can be
// changed individually or all at once.
type LeveledSubLogger interface {
	// SubLoggers returns the registered subsystem loggers.
	SubLoggers() SubLoggers

	// SupportedSubsystems returns the sorted subsystem names.
	SupportedSubsystems() []string

	// SetLogLevel sets the level of a single subsystem.
	SetLogLevel(subsystemID string, logLevel string)

	// SetLogLevels sets the level of every subsystem.
	SetLogLevels(logLevel string)
}

// ParseAndSetDebugLevels applies a level specification such as
// "info,SGNR=debug" to logger. A leading entry without "=" sets every
// subsystem; the remaining entries set single subsystems. Nothing after
// the first invalid entry is applied.
func ParseAndSetDebugLevels(level string, logger LeveledSubLogger) error {
	entries := strings.Split(level, ",")

	if !strings.Contains(entries[0], "=") {
		if !validLogLevel(entries[0]) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", entries[0])
		}
		logger.SetLogLevels(entries[0])
		entries = entries[1:]
	}

	for _, entry := range entries {
		subsysID, logLevel, ok := strings.Cut(entry, "=")
		if !ok || strings.Contains(logLevel, "=") {
			return fmt.Errorf("the specified debug level has an "+
				"invalid subsystem/level pair [%v], use "+
				"subsystem1=level1,subsystem2=level2", entry)
		}

		if _, exists := logger.SubLoggers()[subsysID]; !exists {
			return fmt.Errorf("the specified subsystem [%v] is "+
				"invalid, supported subsystems are %v",
				subsysID, logger.SupportedSubsystems())
		}

		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", logLevel)
		}

		logger.SetLogLevel(subsysID, logLevel)
	}

	return nil
}

// validLogLevel returns whether logLevel names a btclog level.
func validLogLevel(logLevel string) bool {
	_, ok := btclog.LevelFromString(logLevel)
	return ok
}

// LogClosure defers an expensive formatting operation until the logger
// actually prints the value.
type LogClosure func() string

// String invokes the closure.
func (c LogClosure) String() string {
	return c()
}

// NewLogClosure wraps c so it can be passed as a fmt.Stringer log argument.
func NewLogClosure(c func() string) LogClosure {
	return LogClosure(c)
}
