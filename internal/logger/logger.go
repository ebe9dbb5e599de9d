package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"
)

// LogLevel represents the supported log levels
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// LogEntry is one structured log line
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	Function  string                 `json:"function,omitempty"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Logger is the structured JSON logger used across the scraper
type Logger struct {
	level     LogLevel
	component string
	fields    map[string]interface{}
}

// NewLogger creates a component-scoped logger
func NewLogger(component string) *Logger {
	return &Logger{
		level:     DEBUG,
		component: component,
		fields:    make(map[string]interface{}),
	}
}

// SetLevel sets the minimum level that will be emitted
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

// WithField returns a child logger carrying one extra field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	newLogger := &Logger{
		level:     l.level,
		component: l.component,
		fields:    make(map[string]interface{}),
	}

	for k, v := range l.fields {
		newLogger.fields[k] = v
	}
	newLogger.fields[key] = value

	return newLogger
}

// WithFields returns a child logger carrying several extra fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newLogger := &Logger{
		level:     l.level,
		component: l.component,
		fields:    make(map[string]interface{}),
	}

	for k, v := range l.fields {
		newLogger.fields[k] = v
	}
	for k, v := range fields {
		newLogger.fields[k] = v
	}

	return newLogger
}

// WithError attaches an error to the logger context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *Logger) log(level LogLevel, message string, err error) {
	if level < l.level || level < globalLevel {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	var funcName string
	var fileName string

	if ok {
		parts := strings.Split(file, "/")
		if len(parts) > 0 {
			fileName = parts[len(parts)-1]
		}

		pc, _, _, ok := runtime.Caller(2)
		if ok {
			fn := runtime.FuncForPC(pc)
			if fn != nil {
				funcName = fn.Name()
				if idx := strings.LastIndex(funcName, "."); idx != -1 {
					funcName = funcName[idx+1:]
				}
			}
		}
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Message:   message,
		Component: l.component,
		Function:  funcName,
		File:      fileName,
		Line:      line,
		Fields:    l.fields,
	}

	if err != nil {
		entry.Error = err.Error()
	}

	jsonBytes, jsonErr := json.Marshal(entry)
	if jsonErr != nil {
		// Plain fallback if the entry itself cannot be marshaled
		log.Printf("[%s] %s: %s (JSON error: %v)", level.String(), l.component, message, jsonErr)
		return
	}

	fmt.Println(string(jsonBytes))

	if level == FATAL {
		os.Exit(1)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.log(DEBUG, message, nil)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DEBUG, fmt.Sprintf(format, args...), nil)
}

// Info logs an informational message
func (l *Logger) Info(message string) {
	l.log(INFO, message, nil)
}

// Infof logs a formatted informational message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...), nil)
}

// Warn logs a warning
func (l *Logger) Warn(message string) {
	l.log(WARN, message, nil)
}

// Warnf logs a formatted warning
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WARN, fmt.Sprintf(format, args...), nil)
}

// Error logs an error message; attach errors with WithError
func (l *Logger) Error(message string) {
	l.log(ERROR, message, nil)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, args...), nil)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string) {
	l.log(FATAL, message, nil)
}

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(FATAL, fmt.Sprintf(format, args...), nil)
}

// globalLevel gates every logger; per-logger SetLevel can only raise the bar
var globalLevel = INFO

// SetGlobalLevel sets the minimum level emitted by all loggers
func SetGlobalLevel(level LogLevel) {
	globalLevel = level
}

// ParseLevel maps a level keyword onto a LogLevel, defaulting to INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// Default global logger
var defaultLogger = NewLogger("app")

func Debug(message string)                        { defaultLogger.Debug(message) }
func Debugf(format string, args ...interface{})   { defaultLogger.Debugf(format, args...) }
func Info(message string)                         { defaultLogger.Info(message) }
func Infof(format string, args ...interface{})    { defaultLogger.Infof(format, args...) }
func Warn(message string)                         { defaultLogger.Warn(message) }
func Warnf(format string, args ...interface{})    { defaultLogger.Warnf(format, args...) }
func Error(message string)                        { defaultLogger.Error(message) }
func Errorf(format string, args ...interface{})   { defaultLogger.Errorf(format, args...) }
func Fatal(message string)                        { defaultLogger.Fatal(message) }
func Fatalf(format string, args ...interface{})   { defaultLogger.Fatalf(format, args...) }
func WithField(key string, v interface{}) *Logger { return defaultLogger.WithField(key, v) }
func WithFields(fields map[string]interface{}) *Logger {
	return defaultLogger.WithFields(fields)
}
func WithError(err error) *Logger { return defaultLogger.WithError(err) }
func SetLevel(level LogLevel)     { defaultLogger.SetLevel(level) }
