// Package logger holds the process-wide zap logger. Sessions, engines and
// requests log through child loggers tagged with FieldSessionID, FieldEngine
// and FieldRequestID, so one request can be followed from the HTTP layer down
// to the transaction it ran.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field keys shared by every layer
const (
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	// FieldEngine holds the engine name or its redacted URI
	FieldEngine = "engine"
)

// Rotation defaults applied when the config leaves them at zero
const (
	defaultMaxSizeMB  = 100
	defaultMaxAgeDays = 7
	defaultMaxBackups = 5
)

var (
	global atomic.Pointer[zap.Logger]
	once   sync.Once
)

// Config holds the logger configuration
type Config struct {
	// Level is the minimum level: debug, info, warn or error. Unknown values mean info.
	Level string `yaml:"level"`
	// Format is "text" for console lines or "json"
	Format string `yaml:"format"`
	// File also receives every entry, without color, rotated by lumberjack
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxAge     int    `yaml:"max_age"`  // days
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
	// AccessLog logs successful requests at info level. Failed requests are always logged.
	AccessLog bool `yaml:"access_log"`
}

// Init builds and installs the global logger. Only the first call has effect.
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		var l *zap.Logger
		if l, err = New(cfg); err == nil {
			global.Store(l)
		}
	})
	return err
}

// New builds a logger writing to stdout and, when cfg.File is set, to the
// rotated file. It does not touch the global logger.
func New(cfg Config) (*zap.Logger, error) {
	return build(cfg, zapcore.Lock(os.Stdout))
}

func build(cfg Config, stdout zapcore.WriteSyncer) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	console, plain := encoders(cfg.Format)
	cores := []zapcore.Core{zapcore.NewCore(console, stdout, level)}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		cores = append(cores, zapcore.NewCore(plain, zapcore.AddSync(rotator(cfg)), level))
	}
	return zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// encoders returns the stdout encoder and the uncolored one used for files
func encoders(format string) (console, plain zapcore.Encoder) {
	if format != "text" {
		enc := zapcore.NewJSONEncoder(jsonEncoderConfig())
		return enc, enc
	}
	cfg := textEncoderConfig()
	plain = zapcore.NewConsoleEncoder(cfg)
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg), plain
}

func textEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.NameKey = zapcore.OmitKey
	cfg.FunctionKey = zapcore.OmitKey
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " "
	return cfg
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

func rotator(cfg Config) *lumberjack.Logger {
	r := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	if r.MaxSize <= 0 {
		r.MaxSize = defaultMaxSizeMB
	}
	if r.MaxAge <= 0 {
		r.MaxAge = defaultMaxAgeDays
	}
	if r.MaxBackups <= 0 {
		r.MaxBackups = defaultMaxBackups
	}
	return r
}

// parseLevel converts a level name; the empty string is info
func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	err := l.UnmarshalText([]byte(level))
	return l, err
}

// Get returns the global logger, a no-op logger before Init
func Get() *zap.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// Named returns a child of the global logger
func Named(name string) *zap.Logger {
	return Get().Named(name)
}

// WithSession returns a child of the global logger tagged with a session ID
func WithSession(sessionID string) *zap.Logger {
	return Get().With(zap.String(FieldSessionID, sessionID))
}

// Replace swaps the global logger and returns a function restoring the
// previous one. Tests use it with zaptest/observer.
func Replace(l *zap.Logger) func() {
	prev := global.Swap(l)
	return func() { global.Store(prev) }
}

func Debug(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

// Fatal logs and exits the process
func Fatal(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Fatal(msg, fields...)
}

// Sync flushes buffered entries of the global logger
func Sync() error {
	if l := global.Load(); l != nil {
		return l.Sync()
	}
	return nil
}
