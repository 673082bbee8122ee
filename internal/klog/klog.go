// Package klog is the kernel's diagnostic logger. It renders leveled,
// per-subsystem messages onto a single byte-oriented sink, which at runtime
// is the serial channel exposed by the active architecture backend.
package klog

import (
	"fmt"
	"io"
	"sync"

	"github.com/tephra-os/tephra/internal/kopts"
)

// Level is a log severity. Lower is more severe.
type Level uint8

const (
	LevelCritical Level = iota
	LevelError
	LevelWarning
	LevelNotice
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelCritical:
		return "CRIT"
	case LevelError:
		return "ERR"
	case LevelWarning:
		return "WARN"
	case LevelNotice:
		return "NOTICE"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "?"
	}
}

// ParseLevel parses the option-string spelling of a level.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "crit":
		return LevelCritical, true
	case "err":
		return LevelError, true
	case "warn":
		return LevelWarning, true
	case "notice":
		return LevelNotice, true
	case "info":
		return LevelInfo, true
	case "debug":
		return LevelDebug, true
	default:
		return 0, false
	}
}

// Logger filters by level, with per-subsystem overrides, and serializes
// writes to its sink.
type Logger struct {
	mu           sync.Mutex
	w            io.Writer
	defaultLevel Level
	subsys       map[string]Level
}

// New creates a logger writing to w at LevelInfo.
func New(w io.Writer) *Logger {
	return &Logger{
		w:            w,
		defaultLevel: LevelInfo,
		subsys:       make(map[string]Level),
	}
}

// Writer returns the underlying sink, for subsystems that stream raw
// output alongside log lines.
func (l *Logger) Writer() io.Writer {
	return l.w
}

// SetDefaultLevel sets the level applied to subsystems without overrides.
func (l *Logger) SetDefaultLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.defaultLevel = level
}

// SetSubsystemLevel overrides the level for one subsystem.
func (l *Logger) SetSubsystemLevel(name string, level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subsys[name] = level
}

// ConfigureFromOptions applies `log=<level>` and `log.<subsys>=<level>`
// boot options. Unknown level spellings are ignored; the options layer has
// already warned about them by the time logging is up.
func (l *Logger) ConfigureFromOptions(opts *kopts.Options) {
	if s, ok := opts.String("log"); ok {
		if level, ok := ParseLevel(s); ok {
			l.SetDefaultLevel(level)
		}
	}
	for sub, s := range opts.Group("log") {
		if level, ok := ParseLevel(s); ok {
			l.SetSubsystemLevel(sub, level)
		}
	}
}

// Enabled reports whether a message at the given level and subsystem would
// be emitted.
func (l *Logger) Enabled(level Level, subsys string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level <= l.levelFor(subsys)
}

func (l *Logger) levelFor(subsys string) Level {
	if lv, ok := l.subsys[subsys]; ok {
		return lv
	}
	return l.defaultLevel
}

// Logf emits one formatted message.
func (l *Logger) Logf(level Level, subsys, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level > l.levelFor(subsys) {
		return
	}
	fmt.Fprintf(l.w, "[%6s] %s: %s\n", level.String(), subsys, fmt.Sprintf(format, args...))
}

func (l *Logger) Critf(subsys, format string, args ...interface{}) {
	l.Logf(LevelCritical, subsys, format, args...)
}

func (l *Logger) Errorf(subsys, format string, args ...interface{}) {
	l.Logf(LevelError, subsys, format, args...)
}

func (l *Logger) Warnf(subsys, format string, args ...interface{}) {
	l.Logf(LevelWarning, subsys, format, args...)
}

func (l *Logger) Noticef(subsys, format string, args ...interface{}) {
	l.Logf(LevelNotice, subsys, format, args...)
}

func (l *Logger) Infof(subsys, format string, args ...interface{}) {
	l.Logf(LevelInfo, subsys, format, args...)
}

func (l *Logger) Debugf(subsys, format string, args ...interface{}) {
	l.Logf(LevelDebug, subsys, format, args...)
}
