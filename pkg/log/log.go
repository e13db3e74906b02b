// Package log is a thin leveled logger over the standard library. Trace,
// Debug and Info go to stdout; Warn, Error and Fatal go to stderr. One
// level gates both sinks.
package log

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/debug"
	"time"
)

type LogLevel string

const (
	FatalLevel    LogLevel = "fatal"
	ErrorLevel    LogLevel = "error"
	WarningLevel  LogLevel = "warn"
	InfoLevel     LogLevel = "info"
	DebugLevel    LogLevel = "debug"
	TraceLevel    LogLevel = "trace"
	DisabledLevel LogLevel = "disabled"
)

var severity = map[LogLevel]int{
	TraceLevel:    5,
	DebugLevel:    4,
	InfoLevel:     3,
	WarningLevel:  2,
	ErrorLevel:    1,
	FatalLevel:    0,
	DisabledLevel: -1,
}

// level is shared by both sinks.
var level = InfoLevel

// sink writes timestamped, level-tagged lines to one destination.
type sink struct {
	out *log.Logger
}

var (
	stdout = sink{log.New(os.Stdout, "", 0)}
	stderr = sink{log.New(os.Stderr, "", 0)}
)

func (s sink) println(lvl LogLevel, args ...any) {
	if !ShouldLog(lvl, level) {
		return
	}
	ts := time.Now().Local()
	line := []any{
		fmt.Sprintf("%s.%03d", ts.Format("2006-01-02 15:04:05"), ts.Nanosecond()/1000000),
		fmt.Sprintf("- %5s -", lvl),
	}
	line = append(line, args...)
	s.out.Println(line...)
}

func (s sink) printf(lvl LogLevel, format string, args ...any) {
	if !ShouldLog(lvl, level) {
		return
	}
	s.println(lvl, fmt.Sprintf(format, args...))
}

func ValidLogLevel(lvl LogLevel) bool {
	_, ok := severity[lvl]
	return ok
}

func SetLevel(lvl LogLevel) error {
	if !ValidLogLevel(lvl) {
		return fmt.Errorf("No such log level %s", lvl)
	}
	level = lvl
	return nil
}

// ShouldLog reports whether a message at lvl passes the enabled level.
func ShouldLog(lvl, enabled LogLevel) bool {
	if !ValidLogLevel(lvl) || !ValidLogLevel(enabled) {
		return false
	}
	return severity[lvl] <= severity[enabled]
}

func Trace(args ...any) { stdout.println(TraceLevel, args...) }
func Debug(args ...any) { stdout.println(DebugLevel, args...) }
func Info(args ...any)  { stdout.println(InfoLevel, args...) }
func Warn(args ...any)  { stderr.println(WarningLevel, args...) }
func Error(args ...any) { stderr.println(ErrorLevel, args...) }

func Fatal(args ...any) {
	stderr.println(FatalLevel, args...)
	debug.PrintStack()
	os.Exit(1)
}

func Tracef(format string, args ...any) { stdout.printf(TraceLevel, format, args...) }
func Debugf(format string, args ...any) { stdout.printf(DebugLevel, format, args...) }
func Infof(format string, args ...any)  { stdout.printf(InfoLevel, format, args...) }
func Warnf(format string, args ...any)  { stderr.printf(WarningLevel, format, args...) }
func Errorf(format string, args ...any) { stderr.printf(ErrorLevel, format, args...) }

func Fatalf(format string, args ...any) {
	stderr.printf(FatalLevel, format, args...)
	debug.PrintStack()
	os.Exit(1)
}

// Log dispatches to the matching leveled function, used by NewLogWriter.
func Log(lvl LogLevel, msg string, args ...any) {
	switch lvl {
	case TraceLevel:
		Tracef(msg, args...)
	case DebugLevel:
		Debugf(msg, args...)
	case InfoLevel:
		Infof(msg, args...)
	case WarningLevel:
		Warnf(msg, args...)
	case ErrorLevel:
		Errorf(msg, args...)
	case FatalLevel:
		Fatalf(msg, args...)
	}
}

type writeFunc func([]byte) (int, error)

func (fn writeFunc) Write(data []byte) (int, error) {
	return fn(data)
}

// NewLogWriter adapts this package to an io.Writer emitting at lvl, for
// libraries that only accept a writer.
func NewLogWriter(lvl LogLevel) io.Writer {
	return writeFunc(func(data []byte) (int, error) {
		Log(lvl, "%s", data)
		return 0, nil
	})
}

// NewLogger adapts this package to a *log.Logger emitting at debug level.
func NewLogger() *log.Logger {
	return log.New(NewLogWriter(DebugLevel), "", 0)
}

// DebugError logs err and each of its wrapped causes, one per line.
func DebugError(err error) {
	Debug(err.Error())

	for indent := 1; ; indent++ {
		if err = errors.Unwrap(err); err == nil {
			return
		}
		Debugf("| %d: %s", indent, err.Error())
	}
}
