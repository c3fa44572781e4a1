package config

import (
    "log/slog"
    "os"
    "strings"
)

// NewLogger returns a JSON slog logger at the given level and installs it
// as the process default.
func NewLogger(level, service string) *slog.Logger {
    var lvl slog.Level
    switch strings.ToUpper(strings.TrimSpace(level)) {
    case "DEBUG":
        lvl = slog.LevelDebug
    case "WARN":
        lvl = slog.LevelWarn
    case "ERROR":
        lvl = slog.LevelError
    default:
        lvl = slog.LevelInfo
    }
    logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})).With("service", service)
    slog.SetDefault(logger)
    return logger
}
