package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup builds the daemon's JSON logger and installs it as the slog default.
// Lines carry the service name plus timestamp/severity/message keys so the
// process log and the event journal share one vocabulary. Local and test
// environments log at debug.
func Setup(service, env string) *slog.Logger {
	env = strings.TrimSpace(env)
	level := slog.LevelInfo
	switch env {
	case "", "local", "test":
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: renameAttr,
	})
	logger := slog.New(handler).With(slog.String("service", strings.TrimSpace(service)))
	if env != "" {
		logger = logger.With(slog.String("env", env))
	}
	slog.SetDefault(logger)
	return logger
}

// renameAttr maps slog's default keys onto the journal vocabulary.
func renameAttr(groups []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "timestamp"
	case slog.LevelKey:
		attr = slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "message"
	}
	return attr
}

// HTTPErrorLog adapts the logger for net/http's server error path, the one
// stdlib log consumer left in the daemon.
func HTTPErrorLog(logger *slog.Logger) *log.Logger {
	return slog.NewLogLogger(logger.Handler(), slog.LevelError)
}
