package bootstrap

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lk2023060901/zeus-host/pkg/console"
	"github.com/lk2023060901/zeus-host/pkg/engine"
	"github.com/lk2023060901/zeus-host/pkg/fault"
	"github.com/lk2023060901/zeus-host/pkg/logger"
	"github.com/lk2023060901/zeus-host/pkg/plugin"
	"github.com/lk2023060901/zeus-host/pkg/settings"
)

// Option 配置 Bootstrapper。
type Option func(*Bootstrapper)

// WithLogger 使用已创建的日志，跳过按配置构建。
func WithLogger(l logger.Logger) Option {
	return func(b *Bootstrapper) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithSettings 使用已打开的设置存储，跳过按配置打开后端。
func WithSettings(s *settings.Store) Option {
	return func(b *Bootstrapper) {
		b.settings = s
	}
}

// WithConsole 替换控制台管理器。
func WithConsole(c console.Console) Option {
	return func(b *Bootstrapper) {
		if c != nil {
			b.console = c
		}
	}
}

// WithEngine 替换引擎工厂。
func WithEngine(f engine.Factory) Option {
	return func(b *Bootstrapper) {
		b.engineFactory = f
	}
}

// WithSink 替换故障钩子的转发目标，默认为 fault.Handler。
func WithSink(s fault.Sink) Option {
	return func(b *Bootstrapper) {
		b.sink = s
	}
}

// WithOpener 替换插件打开方式。
func WithOpener(o plugin.Opener) Option {
	return func(b *Bootstrapper) {
		b.opener = o
	}
}

// WithBaseDir 设置相对路径的基准目录，默认为可执行文件所在目录。
func WithBaseDir(dir string) Option {
	return func(b *Bootstrapper) {
		if dir != "" {
			b.baseDir = dir
		}
	}
}

// WithDataPath 设置首次运行时写入设置的数据目录，默认为 <base>/data。
func WithDataPath(path string) Option {
	return func(b *Bootstrapper) {
		b.dataPath = path
	}
}

// WithRegisterer 设置指标注册表，默认创建独立的 prometheus.Registry。
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(b *Bootstrapper) {
		if reg != nil {
			b.registerer = reg
		}
	}
}
