package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	SILENT // No logging
)

const resetColor = "\033[0m"

type levelInfo struct {
	name    string
	color   string
	aliases []string
}

var levelTable = [...]levelInfo{
	DEBUG:  {name: "DEBUG", color: "\033[36m", aliases: []string{"debug"}},
	INFO:   {name: "INFO", color: "\033[32m", aliases: []string{"info", ""}},
	WARN:   {name: "WARN", color: "\033[33m", aliases: []string{"warn", "warning"}},
	ERROR:  {name: "ERROR", color: "\033[31m", aliases: []string{"error"}},
	SILENT: {name: "SILENT", aliases: []string{"silent", "none", "off"}},
}

func (l LogLevel) valid() bool {
	return l >= DEBUG && l <= SILENT
}

// Logger writes leveled lines tagged with a module name, e.g.
// "[WARN] [Detector] inference failed".
type Logger struct {
	mu       sync.RWMutex
	level    LogLevel
	useColor bool
	out      *log.Logger
}

// New creates a Logger writing to output, stderr when nil
func New(level LogLevel, output io.Writer, useColor bool) *Logger {
	if output == nil {
		output = os.Stderr
	}
	return &Logger{
		level:    level,
		useColor: useColor,
		out:      log.New(output, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
}

// SetLevel changes the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level LogLevel) bool {
	return level.valid() && level != SILENT && level >= l.GetLevel()
}

func (l *Logger) prefix(level LogLevel, module string) string {
	var b strings.Builder
	if l.useColor {
		b.WriteString(levelTable[level].color)
	}
	b.WriteString("[" + levelTable[level].name + "]")
	if l.useColor {
		b.WriteString(resetColor)
	}
	if module != "" {
		b.WriteString(" [" + module + "]")
	}
	return b.String()
}

// Logf writes one line at level
func (l *Logger) Logf(level LogLevel, module string, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	l.out.Printf("%s %s", l.prefix(level, module), fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(module string, format string, args ...any) {
	l.Logf(DEBUG, module, format, args...)
}

func (l *Logger) Info(module string, format string, args ...any) {
	l.Logf(INFO, module, format, args...)
}

func (l *Logger) Warn(module string, format string, args ...any) {
	l.Logf(WARN, module, format, args...)
}

func (l *Logger) Error(module string, format string, args ...any) {
	l.Logf(ERROR, module, format, args...)
}

// Std adapts the logger to the Println/Printf shape third-party packages
// such as the MQTT client expect. Every line is written at level.
func (l *Logger) Std(level LogLevel, module string) *StdLogger {
	return &StdLogger{parent: l, level: level, module: module}
}

// StdLogger is a fixed-level, fixed-module view of a Logger
type StdLogger struct {
	parent *Logger
	level  LogLevel
	module string
}

func (s *StdLogger) Println(v ...any) {
	s.parent.Logf(s.level, s.module, "%s", strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (s *StdLogger) Printf(format string, v ...any) {
	s.parent.Logf(s.level, s.module, format, v...)
}

// The global logger is silent until Init is called.
var (
	defaultMu     sync.RWMutex
	defaultLogger = New(SILENT, io.Discard, false)
)

// Init installs the global logger. Later calls replace it, which tests use
// to capture output.
func Init(level LogLevel, output io.Writer, useColor bool) {
	l := New(level, output, useColor)
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default returns the global logger
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetLevel sets the global log level
func SetLevel(level LogLevel) { Default().SetLevel(level) }

// GetLevel returns the global log level
func GetLevel() LogLevel { return Default().GetLevel() }

// Debug logs a debug message using the global logger
func Debug(module string, format string, args ...any) {
	Default().Logf(DEBUG, module, format, args...)
}

// Info logs an info message using the global logger
func Info(module string, format string, args ...any) {
	Default().Logf(INFO, module, format, args...)
}

// Warn logs a warning message using the global logger
func Warn(module string, format string, args ...any) {
	Default().Logf(WARN, module, format, args...)
}

// Error logs an error message using the global logger
func Error(module string, format string, args ...any) {
	Default().Logf(ERROR, module, format, args...)
}

// ParseLevel parses a log level name, case-insensitively
func ParseLevel(s string) (LogLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for level, info := range levelTable {
		for _, alias := range info.aliases {
			if alias == name {
				return LogLevel(level), nil
			}
		}
	}
	return INFO, fmt.Errorf("invalid log level: %s", s)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	if !l.valid() {
		return "UNKNOWN"
	}
	return levelTable[l].name
}
