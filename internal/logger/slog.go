package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config controls the daemon's own structured logging.
type Config struct {
	Level  string     `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string     `mapstructure:"format" json:"format"` // text (default) or json
	Color  *bool      `mapstructure:"color" json:"color"`   // nil: auto-detect terminal
	Time   bool       `mapstructure:"time" json:"time"`     // include timestamps in text output
	File   FileConfig `mapstructure:"file" json:"file"`     // worker output mirror
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a slog.Logger writing to w according to cfg.
func New(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	color := false
	if cfg.Color != nil {
		color = *cfg.Color
	} else if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}
	if color {
		return slog.New(NewColorTextHandler(w, opts, cfg.Time))
	}
	if !cfg.Time {
		opts.ReplaceAttr = dropTime
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}
