package logger

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

// LogLevel identifies the severity of a log message. Messages below the
// configured level are discarded before formatting.
type LogLevel int32

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// currentLevel holds the process-wide log level. Atomic so request handlers
// and the refresh loop can log while an admin request changes verbosity.
var currentLevel atomic.Int32

func init() {
	currentLevel.Store(int32(INFO))
}

// ParseLogLevel converts a level name to a LogLevel, defaulting to INFO for
// anything unrecognized.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// SetLogLevel sets the process-wide log level from its string name.
func SetLogLevel(level string) {
	currentLevel.Store(int32(ParseLogLevel(level)))
}

// GetLogLevel returns the current log level as a string.
func GetLogLevel() string {
	switch LogLevel(currentLevel.Load()) {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// shouldLog checks if a message at the given level passes the filter
func shouldLog(level LogLevel) bool {
	return int32(level) >= currentLevel.Load()
}

// logMessage formats and emits a single log line with its level tag
func logMessage(tag string, format string, v ...interface{}) {
	log.Printf("[%s] %s", tag, fmt.Sprintf(format, v...))
}

// Debug logs debug level messages
func Debug(format string, v ...interface{}) {
	if shouldLog(DEBUG) {
		logMessage("DEBUG", format, v...)
	}
}

// Info logs info level messages
func Info(format string, v ...interface{}) {
	if shouldLog(INFO) {
		logMessage("INFO", format, v...)
	}
}

// Warn logs warning level messages
func Warn(format string, v ...interface{}) {
	if shouldLog(WARN) {
		logMessage("WARN", format, v...)
	}
}

// Error logs error level messages
func Error(format string, v ...interface{}) {
	if shouldLog(ERROR) {
		logMessage("ERROR", format, v...)
	}
}
