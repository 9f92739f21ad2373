// Package logging builds the daemon's zap logger from config.LogConfig.
//
// Console output is colored and human readable, json output is meant for
// collectors. When Output names a file it is written through lumberjack so
// that rotation settings apply. The level is held in a zap.AtomicLevel and
// can be changed at runtime by a config reload.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/najoast/catalog/config"
)

// ErrInvalidLevel is returned for a level zap does not know.
var ErrInvalidLevel = errors.New("invalid log level")

// Logger wraps zap.Logger with its adjustable level and output.
type Logger struct {
	*zap.Logger

	level  zap.AtomicLevel
	closer io.Closer
	once   sync.Once
}

// New creates a logger from cfg.
func New(cfg config.LogConfig) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	atom := zap.NewAtomicLevelAt(level)

	sink, closer, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(newEncoder(cfg), sink, atom)
	opts := []zap.Option{zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr))}
	if cfg.Format == config.LogFormatConsole {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return &Logger{
		Logger: zap.New(core, opts...),
		level:  atom,
		closer: closer,
	}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), level: zap.NewAtomicLevel()}
}

// Level returns the current level.
func (l *Logger) Level() config.LogLevel {
	return config.LogLevel(l.level.Level().String())
}

// SetLevel changes the level of this logger and every logger derived from it.
func (l *Logger) SetLevel(level config.LogLevel) error {
	lv, err := parseLevel(level)
	if err != nil {
		return err
	}
	l.level.SetLevel(lv)
	return nil
}

// Close flushes buffered entries and closes a file output.
func (l *Logger) Close() error {
	var err error
	l.once.Do(func() {
		_ = l.Logger.Sync()
		if l.closer != nil {
			err = l.closer.Close()
		}
	})
	return err
}

func parseLevel(level config.LogLevel) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}
	return l, nil
}

func openOutput(cfg config.LogConfig) (zapcore.WriteSyncer, io.Closer, error) {
	switch cfg.Output {
	case "", "stdout":
		return zapcore.Lock(os.Stdout), nil, nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil, nil
	}

	if cfg.Rotation.Enabled {
		lj := &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.Rotation.MaxSize,
			MaxBackups: cfg.Rotation.MaxBackups,
			MaxAge:     cfg.Rotation.MaxAge,
			Compress:   cfg.Rotation.Compress,
		}
		return zapcore.AddSync(lj), lj, nil
	}

	f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return zapcore.Lock(f), f, nil
}

func newEncoder(cfg config.LogConfig) zapcore.Encoder {
	if cfg.Format == config.LogFormatConsole {
		enc := zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
		if cfg.Color {
			enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		return zapcore.NewConsoleEncoder(enc)
	}

	return zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	})
}
