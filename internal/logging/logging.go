// Package logging configures the process-wide slog default used by every
// pipeline component: local ISO-8601 timestamps with millisecond precision
// and zone offset, source file and line, and component tags attached via
// slog.With.
package logging

import (
	"log/slog"
	"os"
	"time"
)

// timeLayout renders timestamps as YYYY-MM-DDTHH:MM:SS.mmm±HH:MM.
const timeLayout = "2006-01-02T15:04:05.000-07:00"

// Setup installs the default text handler at the given level.
func Setup(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(Timestamp(t))
				}
			}
			return a
		},
	})))
}

// Timestamp formats t in the log timestamp layout.
func Timestamp(t time.Time) string {
	return t.Format(timeLayout)
}
