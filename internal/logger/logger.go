package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures a Logger
type Options struct {
	Level   string // debug|info|warn|error
	File    string // optional log file, written in addition to the console
	NoColor bool
}

// Logger wraps a zap.SugaredLogger with the file it may own
type Logger struct {
	*zap.SugaredLogger
	file *os.File
}

// New creates a console logger, plus a file core when opts.File is set
func New(opts Options) (*Logger, error) {
	level := ParseLevel(opts.Level)

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "lvl",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339),
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	consoleEncCfg := encCfg
	consoleEncCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if opts.NoColor {
		consoleEncCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncCfg), zapcore.Lock(os.Stderr), level),
	}

	l := &Logger{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		fileEncCfg := encCfg
		fileEncCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		fileEncCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(fileEncCfg), zapcore.AddSync(f), level))
		l.file = f
	}

	l.SugaredLogger = zap.New(zapcore.NewTee(cores...)).Sugar()
	return l, nil
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Named returns a child logger that shares the parent's file
func (l *Logger) Named(name string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(name), file: l.file}
}

// Close flushes buffered entries and closes the log file, if any
func (l *Logger) Close() error {
	_ = l.Sync()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ParseLevel maps a level name to a zap level, defaulting to info
func ParseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error", "err":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
