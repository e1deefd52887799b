// Package meshlog builds the structured logger mnet.Transport reports
// through, replacing the teacher's homegrown ANSI-colored logger
// (pkg/logger) with zap + lumberjack the way cppla-moto's utils/log.go
// wires them together, while keeping the teacher's leveled-function-call
// ergonomics (Debug/Info/Warn/Error, Section/Banner) at the package level.
package meshlog

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how verbosely mesh nodes log (§6 ambient
// concern — not part of spec.md's own config surface, but every mrpc/mnet
// node needs one).
type Config struct {
	Level      string // debug, info, warn, error
	FilePath   string // empty means stdout only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Console    bool
}

// DefaultConfig logs at info level to stdout, matching the teacher's
// pkg/logger default (LevelInfo, ShowTime true).
func DefaultConfig() Config {
	return Config{Level: "info", Console: true, MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 30}
}

var levelMap = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
}

// Logger wraps *zap.SugaredLogger to satisfy mnet.Logger's
// Debugf/Infof/Warnf/Errorf surface.
type Logger struct {
	s *zap.SugaredLogger
}

// New builds a Logger per cfg. File rotation uses lumberjack the way
// cppla-moto's utils/log.go does (MaxSize/MaxBackups/MaxAge/Compress); when
// FilePath is empty the logger writes to stdout instead.
func New(cfg Config) *Logger {
	level, ok := levelMap[cfg.Level]
	if !ok {
		level = zapcore.InfoLevel
	}
	enabler := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl >= level })

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var cores []zapcore.Core
	if cfg.FilePath != "" {
		hook := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(hook), enabler))
	}
	if cfg.Console || cfg.FilePath == "" {
		consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), enabler))
	}

	zl := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return &Logger{s: zl.Sugar()}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.s.Errorf(format, args...) }

// Sync flushes buffered log entries; call before process exit.
func (l *Logger) Sync() error { return l.s.Sync() }

// Section prints a banner-style section header to stdout, kept from the
// teacher's pkg/logger.Section for CLI readability (cmd/meshnode startup).
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n╔%s╗\n", border)
	fmt.Printf("║ %-61s ║\n", title)
	fmt.Printf("╚%s╝\n\n", border)
}
