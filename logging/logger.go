package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/turbot/pipe-fittings/sanitize"
)

const (
	EnvLogLevel = "FORWARDER_LOG_LEVEL"

	// LevelOff is above every level slog emits
	LevelOff = slog.Level(100)
)

func Initialize(functionName string) {
	slog.SetDefault(NewLogger(functionName, os.Stderr, os.Getenv(EnvLogLevel)))
}

// NewLogger returns a JSON logger writing to w - Lambda forwards stderr to CloudWatch
func NewLogger(functionName string, w io.Writer, levelName string) *slog.Logger {
	level := parseLogLevel(levelName)
	if level == LevelOff {
		return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	}

	handlerOptions := &slog.HandlerOptions{
		Level: level,

		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			sanitized := sanitize.Instance.SanitizeKeyValue(a.Key, a.Value.Any())

			return slog.Attr{
				Key:   a.Key,
				Value: slog.AnyValue(sanitized),
			}
		},
	}
	// add function name as source
	return slog.New(slog.NewJSONHandler(w, handlerOptions)).With("source", functionName)
}

func parseLogLevel(levelName string) slog.Level {
	switch strings.ToLower(levelName) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "off":
		return LevelOff
	default:
		return slog.LevelInfo
	}
}
