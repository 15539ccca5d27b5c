package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// DebugLog is a no-op logger until InitDebugLog enables it, so call sites log
// unconditionally.
var DebugLog = zerolog.Nop()

func CheckDebug() bool {
	debug := os.Getenv("CMDAI_DEBUG")
	return debug == "true" || debug == "1"
}

// logLevel reads CMDAI_LOG_LEVEL ("debug", "info", ...), defaulting to debug.
func logLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(os.Getenv("CMDAI_LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.DebugLevel
	}
	return level
}

// InitDebugLog opens debug.log in dataDir when CMDAI_DEBUG is set. The
// returned closer is never nil.
func InitDebugLog(dataDir string) io.Closer {
	if !CheckDebug() {
		return io.NopCloser(nil)
	}

	if err := EnsureDir(dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create data directory %s: %v\n", dataDir, err)
		return io.NopCloser(nil)
	}

	logPath := filepath.Join(dataDir, "debug.log")

	// 0600: may contain prompts and endpoint details
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return io.NopCloser(nil)
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	DebugLog = zerolog.New(f).Level(logLevel()).With().Timestamp().Logger()
	DebugLog.Info().Str("path", logPath).Msg("debug logging started")

	return f
}
