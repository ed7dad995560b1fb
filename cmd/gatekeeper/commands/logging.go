package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MEKXH/gatekeeper/internal/config"
)

var (
	loggerMu      sync.Mutex
	activeLogFile *os.File
)

// configureLogger installs the default slog logger. Relative log files live
// under the workspace state directory next to the approval journal.
func configureLogger(cfg *config.Config, overrideLevel string) error {
	level, err := parseLogLevel(cfg.Log.Level, overrideLevel)
	if err != nil {
		return err
	}
	path := resolveLogFile(cfg)

	loggerMu.Lock()
	defer loggerMu.Unlock()

	if activeLogFile != nil && activeLogFile.Name() != path {
		_ = activeLogFile.Close()
		activeLogFile = nil
	}

	out := io.Writer(os.Stderr)
	if path != "" {
		if activeLogFile == nil {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return fmt.Errorf("create log directory: %w", err)
			}
			f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			activeLogFile = f
		}
		out = activeLogFile
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler).With("app", "gatekeeper"))
	return nil
}

func resolveLogFile(cfg *config.Config) string {
	path := strings.TrimSpace(cfg.Log.File)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cfg.WorkspacePath(), "state", path)
}

func parseLogLevel(configLevel, override string) (slog.Level, error) {
	level := strings.TrimSpace(configLevel)
	if strings.TrimSpace(override) != "" {
		level = override
	}
	switch strings.ToLower(level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", level)
	}
}
