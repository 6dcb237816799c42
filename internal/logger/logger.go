package logger

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level controls which messages are written.
type Level int

const (
	Debug Level = iota
	Info
	Warning
	Error
)

// ParseLevel maps a config string to a Level, defaulting to Info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return Debug
	case "warn", "warning":
		return Warning
	case "error":
		return Error
	default:
		return Info
	}
}

// Logger is a small leveled logger. When a log directory is configured it
// writes to a size-rotated file alongside stderr.
type Logger struct {
	level Level
	out   *log.Logger
}

// New creates a logger writing to stderr, plus a rotating file under logDir
// when logDir is non-empty.
func New(name, logDir string, level Level) *Logger {
	var w io.Writer = os.Stderr
	if logDir != "" {
		_ = os.MkdirAll(logDir, 0o755)
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   filepath.Join(logDir, name+".log"),
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
		})
	}
	return &Logger{
		level: level,
		out:   log.New(w, "", log.LstdFlags),
	}
}

func (l *Logger) logf(lvl Level, tag, format string, args ...any) {
	if lvl < l.level {
		return
	}
	l.out.Printf(tag+" "+format, args...)
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(Debug, "DEBUG", format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(Info, "INFO", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(Warning, "WARN", format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(Error, "ERROR", format, args...) }
