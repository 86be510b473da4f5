package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Leveled logger used across the service, backed by zerolog.
// - package-level Debugf/Infof/Warnf/Errorf/Fatalf and Init(level)
// - WithFields for structured context (never put token values in fields)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// Fields is structured context attached to a log line.
type Fields map[string]interface{}

var (
	mu     sync.RWMutex
	out    io.Writer = os.Stdout
	pretty bool
	level  Level = LevelInfo
	logger       = build()
)

func build() zerolog.Logger {
	var w io.Writer = out
	if pretty {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(toZerolog(level)).With().Timestamp().Logger()
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelFatal:
		return zerolog.FatalLevel
	}
	return zerolog.InfoLevel
}

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Call early during startup. Default level is Info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		level = LevelDebug
	case "warn", "warning":
		level = LevelWarn
	case "error":
		level = LevelError
	case "fatal":
		level = LevelFatal
	default:
		level = LevelInfo
	}
	logger = build()
}

// SetOutput redirects log output. format "console" enables the human readable writer.
func SetOutput(w io.Writer, format string) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	pretty = strings.EqualFold(strings.TrimSpace(format), "console")
	logger = build()
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func shouldLog(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func Debugf(format string, v ...interface{}) {
	if !shouldLog(LevelDebug) {
		return
	}
	l := current()
	l.Debug().Msgf(format, v...)
}

func Infof(format string, v ...interface{}) {
	if !shouldLog(LevelInfo) {
		return
	}
	l := current()
	l.Info().Msgf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	if !shouldLog(LevelWarn) {
		return
	}
	l := current()
	l.Warn().Msgf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	if !shouldLog(LevelError) {
		return
	}
	l := current()
	l.Error().Msgf(format, v...)
}

func Fatalf(format string, v ...interface{}) {
	l := current()
	l.WithLevel(zerolog.FatalLevel).Msgf(format, v...)
	os.Exit(1)
}

// Println kept for brief messages (maps to Info)
func Println(v ...interface{}) {
	if !shouldLog(LevelInfo) {
		return
	}
	l := current()
	l.Info().Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// Entry is a logger carrying structured fields.
type Entry struct {
	fields Fields
}

// WithFields returns an Entry that attaches fields to every line it writes.
func WithFields(f Fields) *Entry { return &Entry{fields: f} }

func (e *Entry) log(lvl Level, format string, v ...interface{}) {
	if !shouldLog(lvl) {
		return
	}
	l := current()
	var ev *zerolog.Event
	switch lvl {
	case LevelDebug:
		ev = l.Debug()
	case LevelWarn:
		ev = l.Warn()
	case LevelError:
		ev = l.Error()
	default:
		ev = l.Info()
	}
	ev.Fields(map[string]interface{}(e.fields)).Msgf(format, v...)
}

func (e *Entry) Debugf(format string, v ...interface{}) { e.log(LevelDebug, format, v...) }
func (e *Entry) Infof(format string, v ...interface{})  { e.log(LevelInfo, format, v...) }
func (e *Entry) Warnf(format string, v ...interface{})  { e.log(LevelWarn, format, v...) }
func (e *Entry) Errorf(format string, v ...interface{}) { e.log(LevelError, format, v...) }

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	switch level {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}
