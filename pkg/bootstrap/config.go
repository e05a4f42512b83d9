package bootstrap

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/lk2023060901/zeus-host/pkg/logger"
	"github.com/lk2023060901/zeus-host/pkg/plugin"
	"github.com/lk2023060901/zeus-host/pkg/scheduler"
	"github.com/lk2023060901/zeus-host/pkg/settings"
)

// 设置存储后端。
const (
	SettingsBackendFile = "file"
	SettingsBackendEtcd = "etcd"
)

// Config 表示宿主启动配置。
//
// 加载顺序：默认值 -> YAML 文件 -> ZEUS_* 环境变量。
type Config struct {
	// Debug 为 true 时默认日志额外输出到控制台与调试流。
	Debug bool `yaml:"debug" env:"ZEUS_DEBUG"`
	// LoggerName 是宿主使用的具名日志，未在 Loggers 中配置时使用默认配置创建。
	LoggerName string `yaml:"logger_name" env:"ZEUS_LOGGER_NAME"`
	// Loggers 表示日志配置段。
	Loggers []logger.NamedConfig `yaml:"loggers"`

	// PluginsDir 插件目录，相对路径基于可执行文件所在目录。
	PluginsDir string `yaml:"plugins_dir" env:"ZEUS_PLUGINS_DIR"`
	// PluginIsolation 取值 module 或 artifact。
	PluginIsolation string `yaml:"plugin_isolation" env:"ZEUS_PLUGIN_ISOLATION"`

	// CrashOutput 运行时致命错误的额外输出文件，为空时不设置。
	CrashOutput string `yaml:"crash_output" env:"ZEUS_CRASH_OUTPUT"`
	// PoolSize 后台协程池容量，<= 0 时按 CPU 核数计算。
	PoolSize int `yaml:"pool_size" env:"ZEUS_POOL_SIZE"`

	Engine    EngineConfig     `yaml:"engine"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Settings  SettingsConfig   `yaml:"settings"`
}

// EngineConfig 是引擎窗口与帧间隔配置。
type EngineConfig struct {
	Width         int           `yaml:"width" env:"ZEUS_ENGINE_WIDTH"`
	Height        int           `yaml:"height" env:"ZEUS_ENGINE_HEIGHT"`
	FrameInterval time.Duration `yaml:"frame_interval" env:"ZEUS_ENGINE_FRAME_INTERVAL"`
}

// SettingsConfig 选择设置存储后端。
type SettingsConfig struct {
	Backend string `yaml:"backend" env:"ZEUS_SETTINGS_BACKEND"`
	// Path 仅对 file 生效，相对路径基于可执行文件所在目录。
	Path string              `yaml:"path" env:"ZEUS_SETTINGS_PATH"`
	Etcd settings.EtcdConfig `yaml:"etcd"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		LoggerName:      "zeus",
		PluginsDir:      "plugins",
		PluginIsolation: plugin.IsolationModule.String(),
		Engine: EngineConfig{
			Width:         800,
			Height:        600,
			FrameInterval: 16 * time.Millisecond,
		},
		Scheduler: *scheduler.DefaultConfig(),
		Settings: SettingsConfig{
			Backend: SettingsBackendFile,
			Path:    "settings.yaml",
			Etcd:    settings.DefaultEtcdConfig(),
		},
	}
}

// LoadConfigFromFile 从 YAML 文件加载配置，并应用环境变量覆盖。
//
// path 为空时只使用默认值与环境变量。
func LoadConfigFromFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "bootstrap: read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "bootstrap: decode config %s", path)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "bootstrap: parse env")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 校验配置。
func (c Config) Validate() error {
	if c.LoggerName == "" {
		return errors.New("bootstrap: logger_name cannot be empty")
	}
	if _, err := plugin.ParseIsolation(c.PluginIsolation); err != nil {
		return err
	}
	if c.Engine.Width <= 0 || c.Engine.Height <= 0 {
		return errors.Newf("bootstrap: invalid engine size %dx%d", c.Engine.Width, c.Engine.Height)
	}
	switch c.Settings.Backend {
	case SettingsBackendFile, SettingsBackendEtcd:
	default:
		return errors.Newf("bootstrap: unknown settings backend %q", c.Settings.Backend)
	}
	return nil
}
