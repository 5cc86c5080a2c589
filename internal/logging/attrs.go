package logging

import (
	"context"
	"log/slog"
	"time"

	"mergeflow/internal/services"
)

// Attr aliases slog.Attr so callers need only this package.
type Attr = slog.Attr

func Any(key string, value any) Attr { return slog.Any(key, value) }
func Bool(key string, value bool) Attr { return slog.Bool(key, value) }
func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }
func Float64(key string, value float64) Attr { return slog.Float64(key, value) }
func Int(key string, value int) Attr { return slog.Int(key, value) }
func Int64(key string, value int64) Attr { return slog.Int64(key, value) }
func String(key string, value string) Attr { return slog.String(key, value) }

// Error renders err under the "error" key. A nil error is logged as "<nil>"
// rather than dropped so the line still shows an error was expected.
func Error(err error) Attr {
	if err == nil {
		return slog.String(errorKey, "<nil>")
	}
	return slog.Any(errorKey, err)
}

const errorKey = "error"

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewComponentLogger tags logger with a component name; nil falls back to
// a no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

const defaultHint = "check logs for details"

// WarnWithContext logs a warning that always carries event_type,
// error_hint and impact, filling in defaults for whichever the caller
// omitted. When an error attribute is present its taxonomy kind is added.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	logWithDefaults(logger, slog.LevelWarn, msg, eventType, attrs,
		String(FieldErrorHint, defaultHint),
		String(FieldImpact, "operation completed with warnings"),
	)
}

// ErrorWithContext is WarnWithContext at error level without an impact
// default.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	logWithDefaults(logger, slog.LevelError, msg, eventType, attrs,
		String(FieldErrorHint, defaultHint),
	)
}

func logWithDefaults(logger *slog.Logger, level slog.Level, msg, eventType string, attrs []Attr, defaults ...Attr) {
	if logger == nil {
		return
	}
	present := make(map[string]bool, len(attrs))
	var err error
	for _, a := range attrs {
		present[a.Key] = true
		if a.Key == errorKey {
			if e, ok := a.Value.Any().(error); ok {
				err = e
			}
		}
	}
	out := make([]any, 0, len(attrs)+len(defaults)+2)
	for _, a := range attrs {
		out = append(out, a)
	}
	if !present[FieldEventType] {
		out = append(out, String(FieldEventType, eventType))
	}
	for _, d := range defaults {
		if !present[d.Key] {
			out = append(out, d)
		}
	}
	if err != nil && !present[FieldErrorKind] {
		out = append(out, String(FieldErrorKind, services.Kind(err)))
	}
	logger.Log(context.Background(), level, msg, out...)
}
