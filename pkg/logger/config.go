package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config 表示日志配置结构。
type Config struct {
	Loggers []NamedConfig `yaml:"loggers"`
}

// NamedConfig 表示单个具名日志配置，一个具名日志可以同时输出到多个 sink。
type NamedConfig struct {
	Name      string       `yaml:"name"`
	Level     string       `yaml:"level"`
	EnableEnv string       `yaml:"enable_env"`
	Sinks     []SinkConfig `yaml:"sinks"`
}

// DefaultFileName 是默认文件 sink 的文件名，相对可执行文件所在目录。
const DefaultFileName = "debug.log"

// DefaultNamedConfig 返回宿主默认的日志配置。
//
// debug 为 true 时额外输出到控制台与调试流；文件 sink 始终存在。
func DefaultNamedConfig(name string, debug bool) NamedConfig {
	cfg := NamedConfig{
		Name:  name,
		Level: "info",
	}
	if debug {
		cfg.Level = "debug"
		cfg.Sinks = append(cfg.Sinks,
			SinkConfig{Kind: SinkConsole},
			SinkConfig{Kind: SinkDebug},
		)
	}
	cfg.Sinks = append(cfg.Sinks, SinkConfig{
		Kind:       SinkFile,
		Filepath:   DefaultFileName,
		MaxSize:    10,
		MaxBackups: 5,
	})
	return cfg
}

// InitFromConfig 根据配置创建并注册具名日志实例。
func InitFromConfig(cfg Config) error {
	for _, item := range cfg.Loggers {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return errEmptyLoggerName
		}
		l, err := Build(item)
		if err != nil {
			return err
		}
		if err := Register(name, l); err != nil {
			return err
		}
	}
	return nil
}

// Build 根据单个具名配置创建 Logger，不写入注册表。
func Build(item NamedConfig) (Logger, error) {
	if !envEnabled(item.EnableEnv) {
		return Nop(), nil
	}

	level, err := parseLevel(item.Level)
	if err != nil {
		return nil, err
	}
	if len(item.Sinks) == 0 {
		return nil, errNoSinks
	}

	sinks := make([]SinkConfig, 0, len(item.Sinks))
	for _, sink := range item.Sinks {
		if sink.Kind == SinkFile {
			sink.Filepath = resolveFilepath(sink.Filepath)
			if sink.Filepath == "" {
				return nil, errEmptyLogPath
			}
		}
		sinks = append(sinks, sink)
	}

	return NewZapLogger(ZapConfig{
		Level: level,
		Sinks: sinks,
	})
}

func envEnabled(key string) bool {
	if strings.TrimSpace(key) == "" {
		return true
	}
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func parseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("logger: invalid level %q", raw)
	}
}

func resolveFilepath(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	exe, err := os.Executable()
	if err != nil {
		return path
	}
	return filepath.Join(filepath.Dir(exe), path)
}
