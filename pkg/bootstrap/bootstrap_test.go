package bootstrap

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	goplugin "plugin"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lk2023060901/zeus-host/pkg/conc"
	"github.com/lk2023060901/zeus-host/pkg/console"
	"github.com/lk2023060901/zeus-host/pkg/container"
	"github.com/lk2023060901/zeus-host/pkg/engine"
	"github.com/lk2023060901/zeus-host/pkg/fault"
	"github.com/lk2023060901/zeus-host/pkg/logger"
	"github.com/lk2023060901/zeus-host/pkg/module"
	"github.com/lk2023060901/zeus-host/pkg/plugin"
	"github.com/lk2023060901/zeus-host/pkg/settings"
)

const loadWarning = "an error occurred while trying to load plugin"

type fakeEngine struct {
	runErr   error
	runPanic any
	onRun    func(ctx context.Context) error

	runs   atomic.Int32
	closes atomic.Int32
}

func (e *fakeEngine) Run(ctx context.Context) error {
	e.runs.Inc()
	if e.runPanic != nil {
		panic(e.runPanic)
	}
	if e.onRun != nil {
		return e.onRun(ctx)
	}
	return e.runErr
}

func (e *fakeEngine) Close() error {
	e.closes.Inc()
	return nil
}

type fakeConsole struct {
	has   bool
	shows atomic.Int32
	hides atomic.Int32
}

func (c *fakeConsole) HasConsole() bool { return c.has }
func (c *fakeConsole) Show() error      { c.shows.Inc(); return nil }
func (c *fakeConsole) Hide() error      { c.hides.Inc(); return nil }

type symbols map[string]goplugin.Symbol

func (s symbols) Lookup(name string) (goplugin.Symbol, error) {
	sym, ok := s[name]
	if !ok {
		return nil, errors.Newf("symbol %s not found", name)
	}
	return sym, nil
}

type alphaModule struct{}

func (alphaModule) Name() string { return "Alpha" }

func (alphaModule) Load(reg module.Registry) error {
	reg.Register("alpha.greeter", "hello from alpha")
	return nil
}

func (alphaModule) Unload(module.Registry) error { return nil }

// fixture 在临时目录中准备设置、插件目录与可观察的日志。
type fixture struct {
	dir     string
	engine  *fakeEngine
	console *fakeConsole
	logs    *observer.ObservedLogs
	built   atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		dir:     t.TempDir(),
		engine:  &fakeEngine{},
		console: &fakeConsole{},
	}
}

func (f *fixture) options(extra ...Option) []Option {
	core, logs := observer.New(zapcore.DebugLevel)
	f.logs = logs
	opts := []Option{
		WithBaseDir(f.dir),
		WithLogger(logger.NewFromZap(zap.New(core))),
		WithConsole(f.console),
		WithEngine(func(width, height int) (engine.Engine, error) {
			f.built.Inc()
			return f.engine, nil
		}),
	}
	return append(opts, extra...)
}

func (f *fixture) bootstrapper(extra ...Option) *Bootstrapper {
	cfg := DefaultConfig()
	cfg.PoolSize = 4
	return New(cfg, f.options(extra...)...)
}

func (f *fixture) writePlugin(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(f.dir, "plugins")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("binary"), 0o644))
	return path
}

// createdSettings 返回一个已经存在的设置文档，控制台开关由 consoleEnabled 决定。
func (f *fixture) createdSettings(t *testing.T, consoleEnabled bool) *settings.Store {
	t.Helper()
	ctx := context.Background()
	store, err := settings.Open(ctx, settings.NewFileBackend(filepath.Join(f.dir, "existing.yaml")))
	require.NoError(t, err)
	store.Update(func(s *settings.Settings) {
		s.Debug.IsConsoleEnabled = consoleEnabled
		s.Server.UserName = "avatar"
		s.Data.Directory = "/srv/zeus"
	})
	require.NoError(t, store.Save(ctx))
	return store
}

func TestInitializeRunsOnce(t *testing.T) {
	f := newFixture(t)
	b := f.bootstrapper()
	ctx := context.Background()

	require.NoError(t, b.Initialize(ctx))
	require.NoError(t, b.Initialize(ctx))

	assert.EqualValues(t, 1, f.built.Load())
	assert.EqualValues(t, 1, f.engine.runs.Load())
	assert.EqualValues(t, 1, f.engine.closes.Load())
}

func TestInitializeConcurrentCallsRunOnce(t *testing.T) {
	f := newFixture(t)
	b := f.bootstrapper()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Initialize(context.Background()))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, f.built.Load())
}

func TestFirstRunWritesDefaults(t *testing.T) {
	f := newFixture(t)
	b := f.bootstrapper()
	ctx := context.Background()

	require.NoError(t, b.Initialize(ctx))

	store, err := settings.Open(ctx, settings.NewFileBackend(filepath.Join(f.dir, "settings.yaml")))
	require.NoError(t, err)
	require.True(t, store.IsCreated())

	got := store.Get()
	assert.False(t, got.Debug.IsConsoleEnabled)
	assert.False(t, got.Game.AlwaysRun)
	assert.Equal(t, "", got.Server.UserName)
	assert.Equal(t, "127.0.0.1", got.Server.Address)
	assert.Equal(t, 2593, got.Server.Port)
	assert.Equal(t, filepath.Join(f.dir, "data"), got.Data.Directory)

	assert.Zero(t, f.console.shows.Load(), "console is disabled on first run")
}

func TestFirstRunUsesCustomDataPath(t *testing.T) {
	f := newFixture(t)
	b := f.bootstrapper(WithDataPath("/var/lib/zeus"))

	require.NoError(t, b.Initialize(context.Background()))

	store, err := settings.Open(context.Background(), settings.NewFileBackend(filepath.Join(f.dir, "settings.yaml")))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/zeus", store.Get().Data.Directory)
}

// readOnlyBackend 模拟只读安装目录：没有文档，写入总是失败。
type readOnlyBackend struct{}

func (readOnlyBackend) Load(context.Context) ([]byte, bool, error) { return nil, false, nil }

func (readOnlyBackend) Save(context.Context, []byte) error {
	return errors.New("open settings.yaml: read-only file system")
}

func TestFirstRunSaveFailureKeepsDefaultsInMemory(t *testing.T) {
	f := newFixture(t)
	store, err := settings.Open(context.Background(), readOnlyBackend{})
	require.NoError(t, err)
	b := f.bootstrapper(WithSettings(store))

	require.NoError(t, b.Initialize(context.Background()))

	assert.False(t, store.IsCreated())
	assert.Equal(t, filepath.Join(f.dir, "data"), store.Get().Data.Directory)
	assert.EqualValues(t, 1, f.engine.runs.Load())

	warns := f.logs.FilterMessage("failed to save first-run settings, continuing with defaults").All()
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].ContextMap()["error"], "read-only file system")
}

func TestExistingSettingsAreNotOverwritten(t *testing.T) {
	f := newFixture(t)
	store := f.createdSettings(t, false)
	b := f.bootstrapper(WithSettings(store))

	require.NoError(t, b.Initialize(context.Background()))

	got := store.Get()
	assert.Equal(t, "avatar", got.Server.UserName)
	assert.Equal(t, "/srv/zeus", got.Data.Directory)
	_, err := os.Stat(filepath.Join(f.dir, "settings.yaml"))
	assert.True(t, os.IsNotExist(err), "default settings path must stay untouched")
}

func TestConsoleShownAndHiddenWhenEnabled(t *testing.T) {
	f := newFixture(t)
	store := f.createdSettings(t, true)
	f.engine.onRun = func(context.Context) error {
		assert.EqualValues(t, 1, f.console.shows.Load())
		assert.Zero(t, f.console.hides.Load(), "console stays attached while running")
		return nil
	}
	b := f.bootstrapper(WithSettings(store))

	require.NoError(t, b.Initialize(context.Background()))
	assert.EqualValues(t, 1, f.console.hides.Load())
}

func TestExistingConsoleIsLeftAlone(t *testing.T) {
	f := newFixture(t)
	f.console.has = true
	store := f.createdSettings(t, true)
	b := f.bootstrapper(WithSettings(store))

	require.NoError(t, b.Initialize(context.Background()))
	assert.Zero(t, f.console.shows.Load())
	assert.Zero(t, f.console.hides.Load())
}

func TestMissingPluginsDirectoryLoadsOnlyCore(t *testing.T) {
	f := newFixture(t)
	b := f.bootstrapper()

	require.NoError(t, b.Initialize(context.Background()))

	c := b.Container()
	require.NotNil(t, c)
	assert.Equal(t, []container.ModuleRecord{{Name: CoreModuleName, Origin: container.OriginBuiltin}}, c.Modules())
	assert.Zero(t, f.logs.FilterMessage(loadWarning).Len())
	assert.Empty(t, b.Report().Artifacts)
}

func TestPluginFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	pathA := f.writePlugin(t, "A.so")
	pathB := f.writePlugin(t, "B.so")
	f.writePlugin(t, "readme.txt")

	alpha := []module.Constructor{func() (module.Module, error) { return alphaModule{}, nil }}
	opener := plugin.OpenerFunc(func(path string) (plugin.Symbols, error) {
		switch filepath.Base(path) {
		case "A.so":
			return symbols{module.EntryPoint: &alpha}, nil
		case "B.so":
			broken := []module.Constructor{func() (module.Module, error) {
				return nil, errors.New("constructor failed")
			}}
			return symbols{module.EntryPoint: &broken}, nil
		}
		t.Errorf("unexpected artifact %s", path)
		return nil, errors.New("unexpected")
	})
	b := f.bootstrapper(WithOpener(opener))

	require.NoError(t, b.Initialize(context.Background()))

	c := b.Container()
	var names []string
	for _, m := range c.Modules() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{CoreModuleName, "Alpha"}, names)
	assert.Equal(t, pathA, c.Modules()[1].Origin)

	greeting, ok := container.Resolve[string](c, "alpha.greeter")
	assert.True(t, ok)
	assert.Equal(t, "hello from alpha", greeting)

	warns := f.logs.FilterMessage(loadWarning).All()
	require.Len(t, warns, 1)
	assert.Equal(t, pathB, warns[0].ContextMap()["artifact"])

	assert.EqualValues(t, 1, f.engine.runs.Load(), "engine still runs after a plugin failure")
}

func TestCoreServicesRegisteredBeforePlugins(t *testing.T) {
	f := newFixture(t)
	f.writePlugin(t, "inspect.so")

	var seen []string
	inspect := []module.Constructor{func() (module.Module, error) {
		return &inspectModule{seen: &seen}, nil
	}}
	opener := plugin.OpenerFunc(func(string) (plugin.Symbols, error) {
		return symbols{module.EntryPoint: &inspect}, nil
	})
	b := f.bootstrapper(WithOpener(opener))

	require.NoError(t, b.Initialize(context.Background()))

	assert.ElementsMatch(t, []string{
		module.KeyLogger,
		module.KeySettings,
		module.KeyFault,
		module.KeyPool,
		module.KeyScheduler,
		module.KeyMetrics,
		module.KeyRunID,
	}, seen)

	runID, ok := container.Resolve[string](b.Container(), module.KeyRunID)
	require.True(t, ok)
	assert.NotEmpty(t, runID)
	entries := f.logs.FilterMessage("activating module").All()
	require.NotEmpty(t, entries)
	assert.Equal(t, runID, entries[0].ContextMap()["run_id"])
}

// inspectModule 在 Load 时记录容器中已有的 key。
type inspectModule struct {
	seen *[]string
}

func (*inspectModule) Name() string { return "Inspect" }

func (m *inspectModule) Load(reg module.Registry) error {
	*m.seen = append(*m.seen, reg.Keys()...)
	return nil
}

func (*inspectModule) Unload(module.Registry) error { return nil }

func TestRunLoopErrorPropagatesAfterCleanup(t *testing.T) {
	f := newFixture(t)
	errBoom := errors.New("render device lost")
	f.engine.runErr = errBoom
	store := f.createdSettings(t, true)
	b := f.bootstrapper(WithSettings(store))

	err := b.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBoom))
	assert.EqualValues(t, 1, f.engine.closes.Load())
	assert.EqualValues(t, 1, f.console.hides.Load())
	assert.Equal(t, StateTerminated, b.State())
}

func TestRunLoopPanicPropagatesAfterCleanup(t *testing.T) {
	f := newFixture(t)
	f.engine.runPanic = "engine exploded"
	store := f.createdSettings(t, true)
	b := f.bootstrapper(WithSettings(store))

	assert.PanicsWithValue(t, "engine exploded", func() {
		_ = b.Initialize(context.Background())
	})
	assert.EqualValues(t, 1, f.engine.closes.Load())
	assert.EqualValues(t, 1, f.console.hides.Load())
	assert.Equal(t, StateTerminated, b.State())
}

func TestGuardForwardsPanicToSink(t *testing.T) {
	f := newFixture(t)
	f.engine.runPanic = "engine exploded"

	var (
		mu  sync.Mutex
		got []error
	)
	sink := fault.SinkFunc(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, err)
	})
	b := f.bootstrapper(WithSink(sink))

	assert.Panics(t, func() {
		defer b.Guard()
		_ = b.Initialize(context.Background())
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Error(), "engine exploded")
}

func TestUnobservedPoolErrorReachesSink(t *testing.T) {
	f := newFixture(t)
	reported := make(chan error, 1)
	sink := fault.SinkFunc(func(err error) { reported <- err })

	var b *Bootstrapper
	f.engine.onRun = func(context.Context) error {
		pool, ok := container.Resolve[*conc.Pool[struct{}]](b.Container(), module.KeyPool)
		require.True(t, ok)
		require.NoError(t, pool.Go(func() error { return errors.New("background save failed") }))

		select {
		case err := <-reported:
			assert.Contains(t, err.Error(), "background save failed")
		case <-time.After(2 * time.Second):
			t.Error("unobserved error was not reported")
		}
		return nil
	}
	b = f.bootstrapper(WithSink(sink))

	require.NoError(t, b.Initialize(context.Background()))
}

func TestStateTransitions(t *testing.T) {
	f := newFixture(t)
	var b *Bootstrapper
	f.engine.onRun = func(context.Context) error {
		assert.Equal(t, StateRunning, b.State())
		return nil
	}
	b = f.bootstrapper()

	assert.Equal(t, StateUninitialized, b.State())
	require.NoError(t, b.Initialize(context.Background()))
	assert.Equal(t, StateTerminated, b.State())
	assert.Equal(t, "terminated", b.State().String())
}

func TestEngineFactoryError(t *testing.T) {
	f := newFixture(t)
	b := New(DefaultConfig(), append(f.options(), WithEngine(func(int, int) (engine.Engine, error) {
		return nil, errors.New("no display")
	}))...)

	err := b.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no display")
	assert.Equal(t, StateTerminated, b.State())
}

func TestDefaultEngineStopsOnContextCancel(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Engine.FrameInterval = time.Millisecond
	opts := f.options()
	b := New(cfg, opts[:3]...)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, b.Initialize(ctx))
	assert.Equal(t, StateTerminated, b.State())
}

func TestConsoleSinkFollowsConsoleAttachment(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.LoggerName = "bootstrap-console-" + t.Name()
	cfg.Loggers = []logger.NamedConfig{{
		Name:  cfg.LoggerName,
		Level: "info",
		Sinks: []logger.SinkConfig{{Kind: logger.SinkConsole}},
	}}
	store := f.createdSettings(t, true)

	var duringRun int
	b := New(cfg,
		WithBaseDir(f.dir),
		WithSettings(store),
		WithConsole(console.NewManagerWithWriter(&out)),
		WithEngine(func(int, int) (engine.Engine, error) {
			return &fakeEngine{onRun: func(context.Context) error {
				duringRun = out.Len()
				return nil
			}}, nil
		}),
	)

	require.NoError(t, b.Initialize(context.Background()))
	assert.Positive(t, duringRun, "host logs reach the attached console")
	assert.Contains(t, out.String(), "plugin discovery finished")

	l, ok := logger.Lookup(cfg.LoggerName)
	require.True(t, ok)
	before := out.Len()
	l.Info("after detach")
	assert.Equal(t, before, out.Len(), "console output is dropped once detached")
}
