package logger

import (
	"io"
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SinkKind 表示日志输出目标的类型。
type SinkKind string

const (
	// SinkConsole 输出到标准输出，使用人类可读格式。
	SinkConsole SinkKind = "console"
	// SinkDebug 输出到标准错误的调试流，始终输出 debug 级别。
	SinkDebug SinkKind = "debug"
	// SinkFile 输出到按大小滚动的 JSON 文件。
	SinkFile SinkKind = "file"
)

// SinkConfig 表示单个输出目标。
type SinkConfig struct {
	Kind SinkKind `yaml:"kind"`
	// Level 覆盖具名日志的等级，为空时沿用具名日志等级。
	Level string `yaml:"level"`
	// Filepath 仅对 file 生效。
	Filepath string `yaml:"filepath"`
	// MaxSize 表示单个日志文件的最大大小，单位为 MB。
	MaxSize    int  `yaml:"max_size"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAge     int  `yaml:"max_age"`
	Compress   bool `yaml:"compress"`
	// Writer 替换 console/debug 的默认输出，主要用于测试。
	Writer io.Writer `yaml:"-"`
}

func (s SinkConfig) level(fallback Level) (Level, error) {
	if s.Level == "" {
		if s.Kind == SinkDebug {
			return LevelDebug, nil
		}
		return fallback, nil
	}
	return parseLevel(s.Level)
}

func (s SinkConfig) core(fallback Level) (zapcore.Core, error) {
	level, err := s.level(fallback)
	if err != nil {
		return nil, err
	}
	enabler := toZapLevel(level)

	switch s.Kind {
	case SinkConsole, SinkDebug:
		var w io.Writer = os.Stdout
		if s.Kind == SinkDebug {
			w = os.Stderr
		}
		if s.Writer != nil {
			w = s.Writer
		}
		encoderCfg := zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			MessageKey:     "msg",
			CallerKey:      "caller",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeTime:     zapcore.TimeEncoderOfLayout("15:04:05.000"),
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
		if s.Kind == SinkConsole {
			encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		return zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(zapcore.AddSync(w)), enabler), nil
	case SinkFile:
		if s.Filepath == "" {
			return nil, errEmptyLogPath
		}
		maxSize := s.MaxSize
		if maxSize <= 0 {
			maxSize = 100
		}
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   s.Filepath,
			MaxSize:    maxSize,
			MaxBackups: s.MaxBackups,
			MaxAge:     s.MaxAge,
			Compress:   s.Compress,
		})
		return zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig()), writer, enabler), nil
	default:
		return nil, errUnknownSink
	}
}
