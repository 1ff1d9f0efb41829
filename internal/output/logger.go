package output

import (
	"io"
	"log/slog"
	"os"
)

// Logger is the process-wide logger. ansible-playbook owns stdout, so oct
// logs to stderr.
var Logger *slog.Logger

func init() {
	Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// SetLogger allows overriding the default logger (e.g. for testing).
func SetLogger(l *slog.Logger) {
	Logger = l
}

// NewLogger builds a text logger whose level follows the playbook verbosity:
// warnings only when quiet, debug from -vvv up.
func NewLogger(w io.Writer, verbosity int) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: LevelFor(verbosity)}))
}

// LevelFor maps a verbosity count to a log level.
func LevelFor(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return slog.LevelWarn
	case verbosity >= 3:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
