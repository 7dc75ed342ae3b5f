package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a levelled logger for backtest runs and the realtime risk engine.
// Entries go to a per-session file and, optionally, to stdout.
type Logger struct {
	symbol   string
	strategy string
	logFile  *os.File
	zl       *zap.Logger
	mu       sync.Mutex
	logPath  string
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelTrade   LogLevel = "TRADE"
	LogLevelStatus  LogLevel = "STATUS"
)

// Options controls where a Logger writes.
type Options struct {
	Dir     string
	Console bool
}

// NewLogger creates a file logger for the given symbol and strategy
func NewLogger(symbol, strategy string, opts Options) (*Logger, error) {
	logDir := opts.Dir
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s_%s.log", symbol, strategy, time.Now().Format("2006-01-02"))
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	encoder := zapcore.NewConsoleEncoder(encoderConfig())
	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(file), zapcore.DebugLevel)}
	if opts.Console {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zapcore.InfoLevel))
	}

	l := &Logger{
		symbol:   symbol,
		strategy: strategy,
		logFile:  file,
		zl:       zap.New(zapcore.NewTee(cores...)).With(zap.String("symbol", symbol)),
		logPath:  logPath,
	}
	l.Status("session started: symbol=%s strategy=%s", symbol, strategy)
	return l, nil
}

// NewConsole creates a logger that only writes to stdout.
func NewConsole(name string) *Logger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stdout), zapcore.InfoLevel)
	return &Logger{symbol: name, zl: zap.New(core)}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zap.NewNop()}
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.CallerKey = ""
	return cfg
}

// With returns a child logger carrying the given structured fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		symbol:   l.symbol,
		strategy: l.strategy,
		zl:       l.zl.With(fields...),
		logPath:  l.logPath,
	}
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.zl
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	if l == nil || l.zl == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	message := fmt.Sprintf(format, args...)
	switch level {
	case LogLevelWarning:
		l.zl.Warn(message)
	case LogLevelError:
		l.zl.Error(message)
	case LogLevelTrade, LogLevelStatus:
		l.zl.Named(string(level)).Info(message)
	default:
		l.zl.Info(message)
	}
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

// Trade logs a trading action
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Status logs run status information
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// LogError logs error with context
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// LogWarning logs warning with context
func (l *Logger) LogWarning(context string, message string, args ...interface{}) {
	l.Warning("%s: %s", context, fmt.Sprintf(message, args...))
}

// Close flushes and closes the log file
func (l *Logger) Close() error {
	if l == nil || l.logFile == nil {
		return nil
	}
	l.Status("session ended")

	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.zl.Sync()
	err := l.logFile.Close()
	l.logFile = nil
	return err
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	if l == nil {
		return ""
	}
	return l.logPath
}
