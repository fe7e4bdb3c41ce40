// Package logging builds the prefixed loggers used across the client.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns a logger tagged with prefix. With logFile empty the
// logger writes to stderr; otherwise it writes to a size-rotated file.
func NewLogger(prefix, logFile string) *log.Logger {
	var w io.Writer = os.Stderr
	if logFile != "" {
		w = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	return log.New(w, "["+prefix+"] ", log.LstdFlags)
}
