// Package logger provides a small leveled key/value logger used by every
// fileflow component. Derived loggers carry context fields (component,
// operation, reference id) so log lines from concurrent uploads stay
// attributable.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a configuration string into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", level)
	}
}

// Logger writes leveled messages with attached key/value fields.
type Logger struct {
	level  Level
	out    *log.Logger
	format string
	fields map[string]interface{}
}

// Config controls logger construction.
type Config struct {
	Level  Level
	Output io.Writer
	Format string // "json" or "text" (default)
}

// New returns a text logger at INFO writing to stdout.
func New() *Logger {
	return NewWithConfig(Config{Level: INFO, Output: os.Stdout, Format: "text"})
}

// NewWithConfig returns a logger for the given configuration.
func NewWithConfig(config Config) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Format == "" {
		config.Format = "text"
	}

	return &Logger{
		level: config.Level,
		// no prefix or flags, formatting is done here
		out:    log.New(config.Output, "", 0),
		format: config.Format,
		fields: make(map[string]interface{}),
	}
}

// WithFields returns a derived logger carrying the given key/value pairs
// in addition to the receiver's fields.
func (l *Logger) WithFields(keyVals ...interface{}) *Logger {
	derived := &Logger{
		level:  l.level,
		out:    l.out,
		format: l.format,
		fields: make(map[string]interface{}, len(l.fields)+len(keyVals)/2),
	}

	for k, v := range l.fields {
		derived.fields[k] = v
	}
	for i := 0; i+1 < len(keyVals); i += 2 {
		derived.fields[fmt.Sprintf("%v", keyVals[i])] = keyVals[i+1]
	}

	return derived
}

// WithField returns a derived logger with a single additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(key, value)
}

func (l *Logger) Debug(msg string, keyVals ...interface{}) { l.log(DEBUG, msg, keyVals...) }
func (l *Logger) Info(msg string, keyVals ...interface{})  { l.log(INFO, msg, keyVals...) }
func (l *Logger) Warn(msg string, keyVals ...interface{})  { l.log(WARN, msg, keyVals...) }
func (l *Logger) Error(msg string, keyVals ...interface{}) { l.log(ERROR, msg, keyVals...) }

func (l *Logger) Fatal(msg string, keyVals ...interface{}) {
	l.log(ERROR, msg, keyVals...)
	os.Exit(1)
}

// SetLevel changes the minimum level emitted by this logger.
func (l *Logger) SetLevel(level Level) { l.level = level }

// Level returns the current minimum level.
func (l *Logger) Level() Level { return l.level }

func (l *Logger) log(level Level, msg string, keyVals ...interface{}) {
	if level < l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02T15:04:05.000Z07:00")

	all := make(map[string]interface{}, len(l.fields)+len(keyVals)/2)
	for k, v := range l.fields {
		all[k] = v
	}
	for i := 0; i+1 < len(keyVals); i += 2 {
		all[fmt.Sprintf("%v", keyVals[i])] = keyVals[i+1]
	}

	if l.format == "json" {
		l.out.Print(formatJSON(timestamp, level, msg, all))
		return
	}
	l.out.Print(formatText(timestamp, level, msg, all))
}

func formatText(timestamp string, level Level, msg string, fields map[string]interface{}) string {
	parts := []string{
		fmt.Sprintf("[%s]", timestamp),
		fmt.Sprintf("[%s]", level.String()),
		msg,
	}

	if len(fields) > 0 {
		fieldParts := make([]string, 0, len(fields))
		for key, value := range fields {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%s", key, formatValue(value)))
		}
		parts = append(parts, fmt.Sprintf("| %s", strings.Join(fieldParts, " ")))
	}

	return strings.Join(parts, " ")
}

func formatJSON(timestamp string, level Level, msg string, fields map[string]interface{}) string {
	entry := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			entry[k] = err.Error()
			continue
		}
		entry[k] = v
	}
	entry["ts"] = timestamp
	entry["level"] = level.String()
	entry["msg"] = msg

	encoded, err := json.Marshal(entry)
	if err != nil {
		// fall back to text rather than dropping the line
		return formatText(timestamp, level, msg, fields)
	}
	return string(encoded)
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		if strings.Contains(v, " ") {
			return fmt.Sprintf("%q", v)
		}
		return v
	case error:
		return fmt.Sprintf("%q", v.Error())
	case time.Duration:
		return v.String()
	case time.Time:
		return v.Format("2006-01-02T15:04:05Z07:00")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// global logger for package-level convenience calls
var globalLogger = New()

func Debug(msg string, keyVals ...interface{}) { globalLogger.Debug(msg, keyVals...) }
func Info(msg string, keyVals ...interface{})  { globalLogger.Info(msg, keyVals...) }
func Warn(msg string, keyVals ...interface{})  { globalLogger.Warn(msg, keyVals...) }
func Error(msg string, keyVals ...interface{}) { globalLogger.Error(msg, keyVals...) }

// WithField returns a derived logger from the global instance.
func WithField(key string, value interface{}) *Logger {
	return globalLogger.WithField(key, value)
}

// WithFields returns a derived logger from the global instance.
func WithFields(keyVals ...interface{}) *Logger {
	return globalLogger.WithFields(keyVals...)
}

// SetLevel changes the global logger's minimum level.
func SetLevel(level Level) { globalLogger.SetLevel(level) }
