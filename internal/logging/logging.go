package logging

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// Level is a logging verbosity threshold
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel converts a configuration string (debug, info, warn, error) into a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %s", s)
	}
}

// String returns the lowercase name of the level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger is the leveled logger used by the PDF components
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	With(kv ...any) Logger
}

type stdLogger struct {
	out    *log.Logger
	level  Level
	fields []any
}

// New creates a Logger writing to w through the standard library logger
func New(w io.Writer, level Level) Logger {
	return &stdLogger{
		out:   log.New(w, "", log.LstdFlags),
		level: level,
	}
}

// FromStd wraps an existing *log.Logger
func FromStd(l *log.Logger, level Level) Logger {
	return &stdLogger{out: l, level: level}
}

func (l *stdLogger) Debug(msg string, kv ...any) { l.emit(LevelDebug, msg, kv) }
func (l *stdLogger) Info(msg string, kv ...any)  { l.emit(LevelInfo, msg, kv) }
func (l *stdLogger) Warn(msg string, kv ...any)  { l.emit(LevelWarn, msg, kv) }
func (l *stdLogger) Error(msg string, kv ...any) { l.emit(LevelError, msg, kv) }

func (l *stdLogger) With(kv ...any) Logger {
	fields := make([]any, 0, len(l.fields)+len(kv))
	fields = append(fields, l.fields...)
	fields = append(fields, kv...)
	return &stdLogger{out: l.out, level: l.level, fields: fields}
}

func (l *stdLogger) emit(level Level, msg string, kv []any) {
	if level < l.level {
		return
	}
	var b strings.Builder
	b.WriteString(strings.ToUpper(level.String()))
	b.WriteString(" ")
	b.WriteString(msg)
	writeFields(&b, l.fields)
	writeFields(&b, kv)
	l.out.Print(b.String())
}

func writeFields(b *strings.Builder, kv []any) {
	for i := 0; i < len(kv); i += 2 {
		b.WriteString(" ")
		if i+1 >= len(kv) {
			fmt.Fprintf(b, "%v", kv[i])
			break
		}
		fmt.Fprintf(b, "%v=%v", kv[i], kv[i+1])
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) With(...any) Logger   { return nopLogger{} }

// Nop returns a Logger that discards everything
func Nop() Logger { return nopLogger{} }
