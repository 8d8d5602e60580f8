package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	globallog "github.com/rs/zerolog/log"
)

// ConfigureGlobalLogger sets up the zerolog global logger instance.
// Console output goes to stderr at info level (debug with isVerbose).
// If logFilePath is set, every event is also written as JSON to that file
// at debug level. The returned closer flushes and closes the file.
func ConfigureGlobalLogger(isVerbose bool, logFilePath string) (io.Closer, error) {
	consoleLevel := zerolog.InfoLevel
	if isVerbose {
		consoleLevel = zerolog.DebugLevel
	}

	console := levelWriter{w: NewConsoleWriter(os.Stderr), min: consoleLevel}

	if logFilePath == "" {
		// --- Terminal logging ---
		globallog.Logger = zerolog.New(console).With().Timestamp().Logger()
		zerolog.SetGlobalLevel(consoleLevel)
		zerolog.TimeFieldFormat = time.RFC3339
		globallog.Debug().Msg("Configured console logging.")
		return nopCloser{}, nil
	}

	// --- File logging ---
	dir := filepath.Dir(logFilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", dir, err)
	}

	fileHandle, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %q: %w", logFilePath, err)
	}

	// workflow.log should contain all log levels regardless of isVerbose.
	multi := zerolog.MultiLevelWriter(console, levelWriter{w: fileHandle, min: zerolog.DebugLevel})
	globallog.Logger = zerolog.New(multi).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zerolog.TimeFieldFormat = time.RFC3339

	globallog.Debug().Msgf("Configured file logging (JSON format) to: %s", logFilePath)
	return fileHandle, nil
}

// NewConsoleWriter returns the human-readable writer used for terminal logs.
func NewConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		FormatLevel: func(i any) string {
			if level, ok := i.(string); ok {
				return strings.ToUpper(fmt.Sprintf("[%s]", level))
			}
			return fmt.Sprintf("[%v]", i)
		},
		FormatMessage: func(i any) string {
			// Prevent extra quotes around simple messages in console
			if msg, ok := i.(string); ok {
				return msg
			}
			return fmt.Sprintf("%v", i)
		},
	}
}

// levelWriter drops events below min so the console and the file can run
// at different levels behind one logger.
type levelWriter struct {
	w   io.Writer
	min zerolog.Level
}

func (lw levelWriter) Write(p []byte) (int, error) { return lw.w.Write(p) }

func (lw levelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < lw.min {
		return len(p), nil
	}
	return lw.w.Write(p)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
