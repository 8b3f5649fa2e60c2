package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger writes engine activity to a per-symbol daily log file. All
// components share one logger per traded symbol so a day's pipeline
// decisions, fills, and breaker events read as a single narrative.
type Logger struct {
	symbol  string
	logFile *os.File
	logger  *log.Logger
	mu      sync.Mutex
	logDir  string
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelTrade   LogLevel = "TRADE"
	LogLevelRisk    LogLevel = "RISK"
	LogLevelStatus  LogLevel = "STATUS"
)

// NewLogger creates a file logger for the given symbol, writing to
// logs/<symbol>_<date>.log.
func NewLogger(symbol string) (*Logger, error) {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", symbol, timestamp)
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		symbol:  symbol,
		logFile: file,
		logger:  log.New(file, "", 0),
		logDir:  logDir,
	}

	l.writeSessionHeader()

	return l, nil
}

// writeSessionHeader marks the start of an engine run in the log.
func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
TRADE ENGINE SESSION STARTED
================================================================================
Symbol: %s
Started: %s
================================================================================
`, l.symbol, time.Now().Format("2006-01-02 15:04:05"))

	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	l.logger.Println(fmt.Sprintf("[%s] [%s] %s", timestamp, level, message))
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Trade logs an order or position lifecycle event.
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Risk logs a risk-gate or circuit-breaker decision.
func (l *Logger) Risk(format string, args ...interface{}) {
	l.Log(LogLevelRisk, format, args...)
}

// Status logs a periodic status snapshot.
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		l.logger.Println(fmt.Sprintf("[%s] [%s] session ended",
			time.Now().Format("2006-01-02 15:04:05"), LogLevelStatus))
		return l.logFile.Close()
	}
	return nil
}
