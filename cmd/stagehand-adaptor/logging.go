package main

import (
	"log/slog"

	"stagehand/internal/config"
	"stagehand/internal/logging"
)

// sessionLogger writes the detached session's log to a file; its stdout and
// stderr are discarded by the daemon start handoff.
func sessionLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{sessionLogPath(cfg.Paths.LogDir)},
	})
}
