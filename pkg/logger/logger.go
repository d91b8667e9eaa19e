package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	zl     zerolog.Logger
	digest *atomic.Pointer[ErrorDigest] // shared with every child logger
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat}
	}

	zl := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()

	return &Logger{zl: zl, digest: new(atomic.Pointer[ErrorDigest])}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), digest: new(atomic.Pointer[ErrorDigest])}
}

// With returns a child logger carrying the given fields on every event.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		k, v := f.GetKeyValue()
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zl: ctx.Logger(), digest: l.digest}
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.emit(l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.emit(l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.emit(l.zl.Warn(), msg, fields)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.emit(l.zl.Error(), msg, fields)
	if d := l.digest.Load(); d != nil {
		d.Add("error", msg, fieldMap(fields), callerOf(2))
	}
}

func (l *Logger) emit(event *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		f.AddTo(event)
	}
	event.Msg(msg)
}

// AttachDigest starts aggregating error logs and publishing them
// periodically. Loggers derived with With before or after share the digest.
func (l *Logger) AttachDigest(cfg *DigestConfig) {
	if old := l.digest.Swap(NewErrorDigest(cfg)); old != nil {
		old.Close()
	}
}

// DetachDigest flushes and stops the digest.
func (l *Logger) DetachDigest() {
	if old := l.digest.Swap(nil); old != nil {
		old.Close()
	}
}

func callerOf(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(file)), filepath.Base(file), line)
}

func fieldMap(fields []Field) map[string]interface{} {
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		k, v := f.GetKeyValue()
		m[k] = v
	}
	return m
}

// Field is a typed structured-logging attribute.
type Field interface {
	AddTo(event *zerolog.Event)
	GetKeyValue() (string, interface{})
}

type strField struct{ k, v string }

func (f strField) AddTo(e *zerolog.Event)             { e.Str(f.k, f.v) }
func (f strField) GetKeyValue() (string, interface{}) { return f.k, f.v }

type intField struct {
	k string
	v int64
}

func (f intField) AddTo(e *zerolog.Event)             { e.Int64(f.k, f.v) }
func (f intField) GetKeyValue() (string, interface{}) { return f.k, f.v }

type floatField struct {
	k string
	v float64
}

func (f floatField) AddTo(e *zerolog.Event)             { e.Float64(f.k, f.v) }
func (f floatField) GetKeyValue() (string, interface{}) { return f.k, f.v }

type boolField struct {
	k string
	v bool
}

func (f boolField) AddTo(e *zerolog.Event)             { e.Bool(f.k, f.v) }
func (f boolField) GetKeyValue() (string, interface{}) { return f.k, f.v }

type errField struct{ err error }

func (f errField) AddTo(e *zerolog.Event) { e.Err(f.err) }
func (f errField) GetKeyValue() (string, interface{}) {
	if f.err == nil {
		return "error", nil
	}
	return "error", f.err.Error()
}

type anyField struct {
	k string
	v interface{}
}

func (f anyField) AddTo(e *zerolog.Event)             { e.Interface(f.k, f.v) }
func (f anyField) GetKeyValue() (string, interface{}) { return f.k, f.v }

// --- constructors ---

func String(key, value string) Field     { return strField{key, value} }
func Int(key string, value int) Field    { return intField{key, int64(value)} }
func Int64(key string, value int64) Field { return intField{key, value} }
func Float64(key string, value float64) Field {
	return floatField{key, value}
}
func Bool(key string, value bool) Field          { return boolField{key, value} }
func Error(err error) Field                      { return errField{err} }
func Any(key string, value interface{}) Field    { return anyField{key, value} }
func Strings(key string, value []string) Field   { return strField{key, strings.Join(value, ", ")} }
func Duration(key string, d time.Duration) Field { return intField{key, d.Milliseconds()} }
