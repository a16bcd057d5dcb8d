// Package logging provides the logger used by k-mer databases.
//
// The Logger interface has five levels (Error, Warn, Info, Debug, Fatal) so
// callers can adapt their own structured loggers (slog, zap, logrus).
//
// Fatalf logs at FATAL level and never exits the process. The database
// records the condition as its background error before logging it.
//
// Log format: YYYY/MM/DD HH:MM:SS LEVEL [component] message
//
//	2026/01/12 09:14:02 INFO [open] opened genome.kdb: k=31 prefix=10 records=81234
//
// Component namespaces:
//   - [open]   opening and validating a database
//   - [format] structural problems found in a database file
//   - [query]  lookups
//   - [cache]  page cache activity
//   - [close]  releasing a database
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"reflect"
	"strings"
)

// Level represents the logging level.
type Level int

const (
	// LevelError logs only errors.
	LevelError Level = iota
	// LevelWarn logs warnings and errors.
	LevelWarn
	// LevelInfo logs info, warnings, and errors.
	LevelInfo
	// LevelDebug logs everything.
	LevelDebug
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LevelError, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "INFO":
		return LevelInfo, nil
	case "DEBUG":
		return LevelDebug, nil
	default:
		return LevelWarn, fmt.Errorf("logging: unknown level %q", s)
	}
}

// Logger is the logging interface. Implementations must be safe for
// concurrent use: queries log from many goroutines.
type Logger interface {
	Errorf(format string, args ...any)
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)

	// Fatalf logs an unrecoverable condition of the database being read,
	// such as corruption found mid-query.
	Fatalf(format string, args ...any)
}

// DefaultLogger writes leveled lines through the standard log package.
// The level is fixed at construction.
type DefaultLogger struct {
	logger *log.Logger
	level  Level
}

// NewDefaultLogger creates a logger writing to stderr.
func NewDefaultLogger(level Level) *DefaultLogger {
	return NewLogger(os.Stderr, level)
}

// NewLogger creates a logger writing to w.
func NewLogger(w io.Writer, level Level) *DefaultLogger {
	return &DefaultLogger{
		logger: log.New(w, "", log.LstdFlags),
		level:  level,
	}
}

// Level returns the logging level.
func (l *DefaultLogger) Level() Level {
	return l.level
}

func (l *DefaultLogger) output(level Level, format string, args []any) {
	if l.level < level {
		return
	}
	_ = l.logger.Output(3, level.String()+" "+fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error message.
func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.output(LevelError, format, args)
}

// Warnf logs a formatted warning message.
func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.output(LevelWarn, format, args)
}

// Infof logs a formatted informational message.
func (l *DefaultLogger) Infof(format string, args ...any) {
	l.output(LevelInfo, format, args)
}

// Debugf logs a formatted debug message.
func (l *DefaultLogger) Debugf(format string, args ...any) {
	l.output(LevelDebug, format, args)
}

// Fatalf always logs, regardless of level.
func (l *DefaultLogger) Fatalf(format string, args ...any) {
	_ = l.logger.Output(2, "FATAL "+fmt.Sprintf(format, args...))
}

// Namespace prefixes for log messages.
const (
	// NSOpen is the namespace for opening and validating databases.
	NSOpen = "[open] "
	// NSFormat is the namespace for file structure problems.
	NSFormat = "[format] "
	// NSQuery is the namespace for lookups.
	NSQuery = "[query] "
	// NSCache is the namespace for page cache activity.
	NSCache = "[cache] "
	// NSClose is the namespace for releasing databases.
	NSClose = "[close] "
)

// IsNil reports whether l is nil or a typed-nil pointer stored in the
// interface. Calling methods on a typed-nil logger panics.
func IsNil(l Logger) bool {
	if l == nil {
		return true
	}
	v := reflect.ValueOf(l)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// OrDefault returns l, or a WARN-level stderr logger when l is nil.
func OrDefault(l Logger) Logger {
	if IsNil(l) {
		return NewDefaultLogger(LevelWarn)
	}
	return l
}
