// Package util holds the logging setup and host inspection helpers shared
// by the slingshot commands.
package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogFilePrefix names the daily log files.
const LogFilePrefix = "slingshot_"

// LogConfig holds configuration for the logging system.
type LogConfig struct {
	Level      string
	Directory  string
	Console    bool
	MaxAgeDays int

	// ConsoleOut defaults to os.Stderr so stdout stays free for command output.
	ConsoleOut io.Writer
}

// InitLogger points the zerolog global logger at a daily JSON file and,
// optionally, a human readable console writer. It returns the log file path.
func InitLogger(cfg LogConfig) (string, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var writers []io.Writer
	logFilePath := ""
	if cfg.Directory != "" {
		if err := EnsureDir(cfg.Directory); err != nil {
			return "", fmt.Errorf("failed to create log directory %s: %w", cfg.Directory, err)
		}
		logFilePath = filepath.Join(cfg.Directory,
			fmt.Sprintf("%s%s.log", LogFilePrefix, time.Now().Format("2006-01-02")))
		logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return "", fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
		}
		writers = append(writers, logFile)
	}

	if cfg.Console {
		out := cfg.ConsoleOut
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Str("app", "slingshot").
		Logger()

	log.Debug().
		Str("level", level.String()).
		Str("log_file", logFilePath).
		Msg("logger initialized")

	if logFilePath != "" && cfg.MaxAgeDays > 0 {
		go CleanOldLogs(cfg.Directory, time.Duration(cfg.MaxAgeDays)*24*time.Hour, time.Now())
	}
	return logFilePath, nil
}

// CleanOldLogs removes slingshot log files last modified before now-maxAge
// and returns how many were deleted.
func CleanOldLogs(directory string, maxAge time.Duration, now time.Time) int {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return 0
	}

	removed := 0
	cutoff := now.Add(-maxAge)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, LogFilePrefix) || filepath.Ext(name) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(directory, name)
		if os.Remove(path) == nil {
			removed++
			log.Debug().Str("file", path).Msg("removed old log file")
		}
	}
	return removed
}

// ComponentLogger creates a logger with a component name field.
func ComponentLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
