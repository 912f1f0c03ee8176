// Package logger constructs the process logger. The logger is built once in
// the CLI layer and handed to every component that wants to log.
package logger

import (
	"os"

	"github.com/charmbracelet/log"
)

// New returns a logger writing to stderr at the given level. Unknown level
// strings fall back to info with a warning.
func New(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})

	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
		logger.Warn("Unknown log level, using info", "level", level)
	}
	logger.SetLevel(parsed)
	return logger
}
