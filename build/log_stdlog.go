//go:build stdlog
// +build stdlog

package build

import "os"

// LoggingType is a log type that only writes to stderr, which is what unit
// tests use.
const LoggingType = LogTypeStdErr

// Write writes the byte slice to stderr.
func (w *LogWriter) Write(b []byte) (int, error) {
	_, _ = os.Stderr.Write(b)
	return len(b), nil
}
