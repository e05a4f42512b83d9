package bootstrap

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/lk2023060901/zeus-host/pkg/conc"
	"github.com/lk2023060901/zeus-host/pkg/console"
	"github.com/lk2023060901/zeus-host/pkg/container"
	"github.com/lk2023060901/zeus-host/pkg/engine"
	"github.com/lk2023060901/zeus-host/pkg/fault"
	"github.com/lk2023060901/zeus-host/pkg/logger"
	"github.com/lk2023060901/zeus-host/pkg/module"
	"github.com/lk2023060901/zeus-host/pkg/plugin"
	"github.com/lk2023060901/zeus-host/pkg/scheduler"
	"github.com/lk2023060901/zeus-host/pkg/settings"
)

// Bootstrapper 负责宿主进程的一次性启动流程：
// 设置首次运行默认值、控制台、日志、故障钩子、服务容器与插件发现，
// 最后创建引擎并把控制权交给它的运行循环。
type Bootstrapper struct {
	cfg        Config
	baseDir    string
	dataPath   string
	registerer prometheus.Registerer

	gate  atomic.Bool
	state atomic.Int32

	logger        logger.Logger
	settings      *settings.Store
	console       console.Console
	engineFactory engine.Factory
	sink          fault.Sink
	opener        plugin.Opener

	consoleAttached bool
	saveErr         error
	closers         []io.Closer
	runID           string
	pool            *conc.Pool[struct{}]
	scheduler       *scheduler.Scheduler

	hooks     atomic.Pointer[fault.Hooks]
	container atomic.Pointer[container.Container]
	report    atomic.Pointer[plugin.Report]
}

// New 创建 Bootstrapper。cfg 应已通过 Validate。
func New(cfg Config, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{cfg: cfg}
	for _, opt := range opts {
		opt(b)
	}
	if b.baseDir == "" {
		b.baseDir = executableDir()
	}
	if b.dataPath == "" {
		b.dataPath = filepath.Join(b.baseDir, "data")
	}
	if b.console == nil {
		b.console = console.NewManager()
	}
	if b.registerer == nil {
		b.registerer = prometheus.NewRegistry()
	}
	return b
}

// Initialize 执行完整启动流程并阻塞在引擎运行循环中。
//
// 同一实例只有第一次调用生效，之后的调用（包括并发调用）立即返回 nil。
// 运行循环返回的错误或 panic 会在清理完成后原样向上传播。
func (b *Bootstrapper) Initialize(ctx context.Context) error {
	if !b.gate.CompareAndSwap(false, true) {
		return nil
	}
	b.setState(StateInitializing)
	defer b.setState(StateTerminated)
	defer b.closeAll()

	store, err := b.applyDefaults(ctx)
	if err != nil {
		return err
	}

	if err := b.attachConsole(store.Get().Debug.IsConsoleEnabled); err != nil {
		return err
	}
	defer b.detachConsole()

	if err := b.configureLogging(); err != nil {
		return err
	}
	defer func() { _ = b.logger.Sync() }()
	if b.saveErr != nil {
		b.logger.Warn("failed to save first-run settings, continuing with defaults",
			logger.Field{Key: "error", Value: b.saveErr})
	}

	b.prepare()

	if err := b.configure(ctx, store); err != nil {
		return err
	}
	defer b.pool.Release()

	return b.run(ctx)
}

// State 返回当前阶段。
func (b *Bootstrapper) State() State {
	return State(b.state.Load())
}

// Container 返回服务容器，配置阶段之前为 nil。
func (b *Bootstrapper) Container() *container.Container {
	return b.container.Load()
}

// Report 返回插件发现结果，发现之前为 nil。
func (b *Bootstrapper) Report() *plugin.Report {
	return b.report.Load()
}

// Guard 用于 main 中 defer，把逃逸的 panic 转发给故障钩子后继续抛出。
//
//	defer b.Guard()
func (b *Bootstrapper) Guard() {
	r := recover()
	if r == nil {
		return
	}
	if h := b.hooks.Load(); h != nil {
		h.Forward(r)
	}
	panic(r)
}

func (b *Bootstrapper) setState(s State) {
	b.state.Store(int32(s))
}

// applyDefaults 打开设置存储，首次运行时写入默认值并保存。
// 保存失败不会中断启动：默认值只保留在内存中，错误在日志就绪后记录。
func (b *Bootstrapper) applyDefaults(ctx context.Context) (*settings.Store, error) {
	store := b.settings
	if store == nil {
		backend, err := b.settingsBackend()
		if err != nil {
			return nil, err
		}
		store, err = settings.Open(ctx, backend)
		if err != nil {
			return nil, errors.Wrap(err, "bootstrap: open settings")
		}
		b.settings = store
	}
	if store.IsCreated() {
		return store, nil
	}

	store.Update(func(s *settings.Settings) {
		s.Debug.IsConsoleEnabled = false
		s.Game.AlwaysRun = false
		s.Server.UserName = ""
		s.Data.Directory = b.dataPath
	})
	if err := store.Save(ctx); err != nil {
		b.saveErr = errors.Wrap(err, "bootstrap: save first-run settings")
	}
	return store, nil
}

func (b *Bootstrapper) settingsBackend() (settings.Backend, error) {
	switch b.cfg.Settings.Backend {
	case SettingsBackendEtcd:
		backend, err := settings.NewEtcdBackend(b.cfg.Settings.Etcd)
		if err != nil {
			return nil, errors.Wrap(err, "bootstrap: settings backend")
		}
		b.closers = append(b.closers, backend)
		return backend, nil
	default:
		return settings.NewFileBackend(b.resolve(b.cfg.Settings.Path)), nil
	}
}

// attachConsole 在需要时显示控制台，并记录是否由本进程显示。
func (b *Bootstrapper) attachConsole(enabled bool) error {
	if !enabled || b.console.HasConsole() {
		return nil
	}
	if err := b.console.Show(); err != nil {
		return errors.Wrap(err, "bootstrap: show console")
	}
	b.consoleAttached = true
	return nil
}

func (b *Bootstrapper) detachConsole() {
	if !b.consoleAttached {
		return
	}
	b.consoleAttached = false
	if err := b.console.Hide(); err != nil && b.logger != nil {
		b.logger.Warn("failed to hide console", logger.Field{Key: "error", Value: err})
	}
}

// configureLogging 构建宿主日志，并附加本次运行的 run_id。
func (b *Bootstrapper) configureLogging() error {
	if b.logger == nil {
		l, err := b.buildLoggers()
		if err != nil {
			return err
		}
		b.logger = l
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	b.runID = id.String()
	b.logger = b.logger.With(logger.Field{Key: "run_id", Value: b.runID})
	b.logger.Info("logging configured", logger.Field{Key: "logger", Value: b.cfg.LoggerName})
	return nil
}

// buildLoggers 注册配置中的全部具名日志，并返回宿主日志。
// 宿主日志未配置时使用 DefaultNamedConfig。
func (b *Bootstrapper) buildLoggers() (logger.Logger, error) {
	name := b.cfg.LoggerName
	host := logger.DefaultNamedConfig(name, b.cfg.Debug)
	var others []logger.NamedConfig
	for _, item := range b.cfg.Loggers {
		if item.Name == name {
			host = item
			continue
		}
		others = append(others, item)
	}

	for _, item := range others {
		if _, ok := logger.Lookup(item.Name); ok {
			continue
		}
		l, err := logger.Build(b.withConsoleWriter(item))
		if err != nil {
			return nil, errors.Wrapf(err, "bootstrap: build logger %q", item.Name)
		}
		if err := logger.Register(item.Name, l); err != nil {
			return nil, errors.Wrapf(err, "bootstrap: register logger %q", item.Name)
		}
	}

	if l, ok := logger.Lookup(name); ok {
		return l, nil
	}
	l, err := logger.Build(b.withConsoleWriter(host))
	if err != nil {
		return nil, errors.Wrapf(err, "bootstrap: build logger %q", name)
	}
	if err := logger.Register(name, l); err != nil {
		return nil, errors.Wrapf(err, "bootstrap: register logger %q", name)
	}
	return l, nil
}

// withConsoleWriter 让 console sink 写入控制台管理器，控制台不存在时输出被丢弃。
func (b *Bootstrapper) withConsoleWriter(item logger.NamedConfig) logger.NamedConfig {
	w, ok := b.console.(io.Writer)
	if !ok {
		return item
	}
	sinks := make([]logger.SinkConfig, len(item.Sinks))
	copy(sinks, item.Sinks)
	for i := range sinks {
		if sinks[i].Kind == logger.SinkConsole && sinks[i].Writer == nil {
			sinks[i].Writer = w
		}
	}
	item.Sinks = sinks
	return item
}

// prepare 安装故障钩子。
func (b *Bootstrapper) prepare() {
	if b.sink == nil {
		b.sink = fault.NewHandler(b.logger)
	}
	var opts []fault.HooksOption
	if b.cfg.CrashOutput != "" {
		opts = append(opts, fault.WithCrashOutput(b.resolve(b.cfg.CrashOutput)))
	}
	hooks := fault.NewHooks(b.sink, opts...)
	if err := hooks.Install(); err != nil {
		b.logger.Warn("crash output unavailable", logger.Field{Key: "error", Value: err})
	}
	b.hooks.Store(hooks)
}

// configure 创建容器、注册宿主服务与内置模块，然后发现插件。
//
// 插件失败只记录日志，不会中断启动。
func (b *Bootstrapper) configure(ctx context.Context, store *settings.Store) error {
	hooks := b.hooks.Load()

	var (
		pool *conc.Pool[struct{}]
		err  error
	)
	if b.cfg.PoolSize > 0 {
		pool, err = conc.NewPool[struct{}](b.cfg.PoolSize, conc.WithReporter(hooks.Unobserved))
	} else {
		pool, err = conc.NewDefaultPool[struct{}](conc.WithReporter(hooks.Unobserved))
	}
	if err != nil {
		return errors.Wrap(err, "bootstrap: create pool")
	}

	schedCfg := b.cfg.Scheduler
	sched, err := scheduler.New(&schedCfg,
		scheduler.WithLogger(b.logger.With(logger.Field{Key: "component", Value: "scheduler"})),
		scheduler.WithPool(pool),
		scheduler.WithReporter(hooks.Unobserved),
	)
	if err != nil {
		pool.Release()
		return errors.Wrap(err, "bootstrap: create scheduler")
	}

	metrics, err := plugin.NewMetrics(b.registerer)
	if err != nil {
		pool.Release()
		return errors.Wrap(err, "bootstrap: register metrics")
	}

	c := container.New()
	c.Register(module.KeyLogger, b.logger)
	c.Register(module.KeySettings, store)
	c.Register(module.KeyFault, b.sink)
	c.Register(module.KeyPool, pool)
	c.Register(module.KeyScheduler, sched)
	c.Register(module.KeyMetrics, b.registerer)
	c.Register(module.KeyRunID, b.runID)
	if err := container.RegisterModule[CoreModule](c); err != nil {
		pool.Release()
		return errors.Wrap(err, "bootstrap: register core module")
	}
	b.pool = pool
	b.scheduler = sched
	b.container.Store(c)

	isolation, err := plugin.ParseIsolation(b.cfg.PluginIsolation)
	if err != nil {
		b.logger.Warn("invalid plugin isolation, using default",
			logger.Field{Key: "isolation", Value: b.cfg.PluginIsolation},
			logger.Field{Key: "error", Value: err})
		isolation = plugin.IsolationModule
	}
	loader := plugin.NewLoader(b.resolve(b.cfg.PluginsDir),
		plugin.WithLogger(b.logger),
		plugin.WithOpener(b.opener),
		plugin.WithIsolation(isolation),
		plugin.WithMetrics(metrics),
	)
	report, err := loader.Discover(ctx, c)
	if err != nil {
		b.logger.Warn("plugin discovery incomplete",
			logger.Field{Key: "dir", Value: loader.Dir()},
			logger.Field{Key: "error", Value: err})
	}
	b.report.Store(report)
	b.logger.Info("plugin discovery finished",
		logger.Field{Key: "artifacts", Value: len(report.Artifacts)},
		logger.Field{Key: "modules", Value: len(report.Activated)},
		logger.Field{Key: "failures", Value: len(report.Failures)})
	return nil
}

// run 创建引擎并执行运行循环。
func (b *Bootstrapper) run(ctx context.Context) error {
	factory := b.engineFactory
	if factory == nil {
		factory = engine.HeadlessFactory(engine.Options{
			Interval: b.cfg.Engine.FrameInterval,
			Logger:   b.logger.With(logger.Field{Key: "component", Value: "engine"}),
		})
	}
	eng, err := factory(b.cfg.Engine.Width, b.cfg.Engine.Height)
	if err != nil {
		return errors.Wrap(err, "bootstrap: create engine")
	}
	defer func() {
		if err := eng.Close(); err != nil {
			b.logger.Warn("failed to close engine", logger.Field{Key: "error", Value: err})
		}
	}()

	b.scheduler.Start()
	defer b.scheduler.Stop()

	b.setState(StateRunning)
	b.logger.Info("engine run-loop starting",
		logger.Field{Key: "width", Value: b.cfg.Engine.Width},
		logger.Field{Key: "height", Value: b.cfg.Engine.Height})
	if err := eng.Run(ctx); err != nil {
		return errors.Wrap(err, "bootstrap: engine run-loop")
	}
	b.logger.Info("engine run-loop finished")
	return nil
}

func (b *Bootstrapper) closeAll() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i].Close()
	}
	b.closers = nil
}

// resolve 将相对路径解析为基于 baseDir 的路径。
func (b *Bootstrapper) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(b.baseDir, path)
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
