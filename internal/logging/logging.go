// Package logging sets up the process loggers: slog fanned out to console or
// file, GELF and OpenTelemetry, plus a zerolog logger for the storage and
// telemetry managers.
package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath builds a per-session log file path using OS-appropriate separators.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")),
	)
}
