package cli

import (
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
	"github.com/lmittmann/tint"
)

// newLogger writes human readable logs to w. verbosity 0 shows warnings
// and errors, 1 adds info and 2 adds the engine's V(1) trace.
func newLogger(w io.Writer, verbosity int) logr.Logger {
	level := slog.LevelWarn - slog.Level(4*verbosity)
	handler := tint.NewHandler(w, &tint.Options{
		Level:       level,
		TimeFormat:  time.TimeOnly,
		NoColor:     color.NoColor,
		ReplaceAttr: rewriteLogLevel,
	})
	return logr.FromSlogHandler(handler)
}

func rewriteLogLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) != 0 {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	var text string
	switch {
	case level < slog.LevelInfo:
		text = "DEBUG"
	case level < slog.LevelWarn:
		text = color.GreenString("INFO")
	case level < slog.LevelError:
		text = color.YellowString("WARN")
	default:
		text = color.RedString("ERROR")
	}
	a.Value = slog.StringValue(text)
	return a
}
