package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/turbot/tailwriter/internal/constants"
)

// LevelOff disables logging
const LevelOff = slog.Level(100)

func Initialize() {
	logger := TailwriterLogger(os.Stderr)
	slog.SetDefault(logger)

	slog.Info("Tailwriter CLI",
		"app version", viper.GetString("main.version"),
		"log level", os.Getenv(constants.EnvLogLevel))
}

// TailwriterLogger returns a logger that writes JSON to w and sanitizes log entries
func TailwriterLogger(w io.Writer) *slog.Logger {
	level := getLogLevel()
	if level == LevelOff {
		return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	}

	handlerOptions := &slog.HandlerOptions{
		Level: level,

		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			return slog.Attr{
				Key:   a.Key,
				Value: sanitize(a.Key, a.Value),
			}
		},
	}

	return slog.New(slog.NewJSONHandler(w, handlerOptions)).With("source", "cli")
}

func getLogLevel() slog.Leveler {
	levelEnv := os.Getenv(constants.EnvLogLevel)

	switch strings.ToLower(levelEnv) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return LevelOff
	}
}
