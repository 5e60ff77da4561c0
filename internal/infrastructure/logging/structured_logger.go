package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "reasonguard"

// StructuredLogger provides ELK-compatible JSON logging on top of zap.
//
// Standard keys are @timestamp, level, message, logger and caller.
// Correlation ids (task_id, run_id, trace_id, agent_role) are promoted to the
// top level; every other field is nested under "fields".
type StructuredLogger struct {
	mu     sync.RWMutex
	zl     *zap.Logger
	level  zap.AtomicLevel
	fields map[string]interface{} // Global fields for all logs
}

// LogLevel represents logging severity levels.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel converts a config value such as "debug" or "WARN" into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// promoted keys are written at the top level instead of under "fields".
var promoted = map[string]bool{
	"task_id":    true,
	"run_id":     true,
	"trace_id":   true,
	"request_id": true,
	"agent_role": true,
}

// LogEntry mirrors one JSON line. It is used by consumers that parse logs
// back, such as tests.
type LogEntry struct {
	Timestamp  string                 `json:"@timestamp"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Logger     string                 `json:"logger,omitempty"`
	Caller     string                 `json:"caller,omitempty"`
	TaskID     string                 `json:"task_id,omitempty"`
	RunID      string                 `json:"run_id,omitempty"`
	TraceID    string                 `json:"trace_id,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	AgentRole  string                 `json:"agent_role,omitempty"`
	Error      string                 `json:"error,omitempty"`
	ErrorType  string                 `json:"error_type,omitempty"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "@timestamp",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "message",
		StacktraceKey: "stack_trace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.UTC().Format(time.RFC3339Nano))
		},
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewStructuredLogger creates a JSON logger writing to writer.
func NewStructuredLogger(writer io.Writer, minLevel LogLevel) *StructuredLogger {
	l, _ := NewStructuredLoggerWithFormat(writer, minLevel, "json")
	return l
}

// NewStructuredLoggerWithFormat creates a logger using the "json" or
// "console" encoder.
func NewStructuredLoggerWithFormat(writer io.Writer, minLevel LogLevel, format string) (*StructuredLogger, error) {
	if writer == nil {
		writer = os.Stdout
	}

	var enc zapcore.Encoder
	switch strings.ToLower(format) {
	case "", "json":
		enc = zapcore.NewJSONEncoder(encoderConfig())
	case "console", "text":
		enc = zapcore.NewConsoleEncoder(encoderConfig())
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	level := zap.NewAtomicLevelAt(minLevel.zapLevel())
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(writer)), level)

	// Every public entry point reaches zap through write(), so two frames
	// separate zap from the real caller.
	zl := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(2),
		zap.AddStacktrace(zapcore.ErrorLevel),
	).Named(serviceName)

	hostname, _ := os.Hostname()
	return &StructuredLogger{
		zl:    zl,
		level: level,
		fields: map[string]interface{}{
			"service": serviceName,
			"host":    hostname,
		},
	}, nil
}

// NewDefaultLogger creates a logger with INFO level to stdout.
func NewDefaultLogger() *StructuredLogger {
	return NewStructuredLogger(os.Stdout, InfoLevel)
}

// SetMinLevel sets the minimum log level.
func (l *StructuredLogger) SetMinLevel(level LogLevel) {
	l.level.SetLevel(level.zapLevel())
}

// MinLevel returns the current minimum level.
func (l *StructuredLogger) MinLevel() LogLevel {
	switch l.level.Level() {
	case zapcore.DebugLevel:
		return DebugLevel
	case zapcore.WarnLevel:
		return WarnLevel
	case zapcore.ErrorLevel:
		return ErrorLevel
	case zapcore.FatalLevel:
		return FatalLevel
	default:
		return InfoLevel
	}
}

// Zap exposes the underlying logger for libraries that want one.
func (l *StructuredLogger) Zap() *zap.Logger {
	return l.zl.WithOptions(zap.AddCallerSkip(-2))
}

// Sync flushes buffered entries.
func (l *StructuredLogger) Sync() error {
	return l.zl.Sync()
}

// WithField adds a global field to all log entries.
func (l *StructuredLogger) WithField(key string, value interface{}) *StructuredLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fields[key] = value
	return l
}

// WithFields adds multiple global fields to all log entries.
func (l *StructuredLogger) WithFields(fields map[string]interface{}) *StructuredLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range fields {
		l.fields[k] = v
	}
	return l
}

// Debug logs a debug-level message.
func (l *StructuredLogger) Debug(message string, fields ...map[string]interface{}) {
	l.write(DebugLevel, message, nil, fields...)
}

// Info logs an info-level message.
func (l *StructuredLogger) Info(message string, fields ...map[string]interface{}) {
	l.write(InfoLevel, message, nil, fields...)
}

// Warn logs a warning-level message.
func (l *StructuredLogger) Warn(message string, fields ...map[string]interface{}) {
	l.write(WarnLevel, message, nil, fields...)
}

// Error logs an error-level message.
func (l *StructuredLogger) Error(message string, err error, fields ...map[string]interface{}) {
	l.write(ErrorLevel, message, err, fields...)
}

// Fatal logs a fatal-level message and exits the program.
func (l *StructuredLogger) Fatal(message string, err error, fields ...map[string]interface{}) {
	l.write(FatalLevel, message, err, fields...)
}

func (l *StructuredLogger) write(level LogLevel, message string, err error, fields ...map[string]interface{}) {
	ce := l.zl.Check(level.zapLevel(), message)
	if ce == nil {
		return
	}

	merged := make(map[string]interface{})
	l.mu.RLock()
	for k, v := range l.fields {
		merged[k] = v
	}
	l.mu.RUnlock()
	for _, fieldMap := range fields {
		for k, v := range fieldMap {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zf := make([]zap.Field, 0, len(keys)+3)
	for _, k := range keys {
		if promoted[k] {
			zf = append(zf, zap.Any(k, merged[k]))
		}
	}
	if err != nil {
		zf = append(zf,
			zap.String("error", err.Error()),
			zap.String("error_type", fmt.Sprintf("%T", err)),
		)
	}
	zf = append(zf, zap.Namespace("fields"))
	for _, k := range keys {
		if !promoted[k] {
			zf = append(zf, zap.Any(k, merged[k]))
		}
	}

	ce.Write(zf...)
}

// LoggerContext provides contextual logging with pre-set fields.
type LoggerContext struct {
	logger *StructuredLogger
	fields map[string]interface{}
}

// NewContext creates a new logger context with pre-set fields.
func (l *StructuredLogger) NewContext(fields map[string]interface{}) *LoggerContext {
	return &LoggerContext{
		logger: l,
		fields: fields,
	}
}

// Debug logs a debug-level message with context fields.
func (lc *LoggerContext) Debug(message string, fields ...map[string]interface{}) {
	lc.logger.write(DebugLevel, message, nil, lc.mergeFields(fields...))
}

// Info logs an info-level message with context fields.
func (lc *LoggerContext) Info(message string, fields ...map[string]interface{}) {
	lc.logger.write(InfoLevel, message, nil, lc.mergeFields(fields...))
}

// Warn logs a warning-level message with context fields.
func (lc *LoggerContext) Warn(message string, fields ...map[string]interface{}) {
	lc.logger.write(WarnLevel, message, nil, lc.mergeFields(fields...))
}

// Error logs an error-level message with context fields.
func (lc *LoggerContext) Error(message string, err error, fields ...map[string]interface{}) {
	lc.logger.write(ErrorLevel, message, err, lc.mergeFields(fields...))
}

// Fatal logs a fatal-level message with context fields and exits.
func (lc *LoggerContext) Fatal(message string, err error, fields ...map[string]interface{}) {
	lc.logger.write(FatalLevel, message, err, lc.mergeFields(fields...))
}

// mergeFields merges context fields with additional fields.
func (lc *LoggerContext) mergeFields(fields ...map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(lc.fields))
	for k, v := range lc.fields {
		merged[k] = v
	}
	for _, fieldMap := range fields {
		for k, v := range fieldMap {
			merged[k] = v
		}
	}
	return merged
}

// Global default logger
var (
	defaultMu     sync.RWMutex
	defaultLogger = NewDefaultLogger()
)

// SetDefaultLogger sets the global default logger.
func SetDefaultLogger(logger *StructuredLogger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// GetDefaultLogger returns the global default logger.
func GetDefaultLogger() *StructuredLogger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Debug logs to the default logger.
func Debug(message string, fields ...map[string]interface{}) {
	GetDefaultLogger().write(DebugLevel, message, nil, fields...)
}

// Info logs to the default logger.
func Info(message string, fields ...map[string]interface{}) {
	GetDefaultLogger().write(InfoLevel, message, nil, fields...)
}

// Warn logs to the default logger.
func Warn(message string, fields ...map[string]interface{}) {
	GetDefaultLogger().write(WarnLevel, message, nil, fields...)
}

// Error logs to the default logger.
func Error(message string, err error, fields ...map[string]interface{}) {
	GetDefaultLogger().write(ErrorLevel, message, err, fields...)
}

// Fatal logs to the default logger and exits.
func Fatal(message string, err error, fields ...map[string]interface{}) {
	GetDefaultLogger().write(FatalLevel, message, err, fields...)
}
