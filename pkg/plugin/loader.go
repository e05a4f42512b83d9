package plugin

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/zeus-host/pkg/fault"
	"github.com/lk2023060901/zeus-host/pkg/logger"
	"github.com/lk2023060901/zeus-host/pkg/module"
)

// Registry 是发现过程写入的目标注册表。
type Registry interface {
	module.Registry
	// TrackModule 记录一个已激活的模块及其来源产物。
	TrackModule(name, origin string)
}

// Option 配置 Loader。
type Option func(*Loader)

// WithLogger 设置日志。
func WithLogger(l logger.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// WithOpener 替换产物加载方式，默认使用 GoOpener。
func WithOpener(o Opener) Option {
	return func(ld *Loader) {
		if o != nil {
			ld.opener = o
		}
	}
}

// WithIsolation 设置失败隔离级别，默认 IsolationModule。
func WithIsolation(i Isolation) Option {
	return func(ld *Loader) {
		ld.isolation = i
	}
}

// WithMetrics 设置指标。
func WithMetrics(m *Metrics) Option {
	return func(ld *Loader) {
		ld.metrics = m
	}
}

// WithExtension 替换候选产物的扩展名，默认 DefaultExtension()。
func WithExtension(ext string) Option {
	return func(ld *Loader) {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if ext != "" {
			ld.ext = ext
		}
	}
}

// Loader 从目录中发现插件产物并激活其中的模块。
//
// 产物按目录枚举顺序逐个同步处理。任何产物的失败都在本产物内被捕获、
// 记录并跳过，不会中断其它产物的加载，也不会传播给调用方。
type Loader struct {
	dir       string
	ext       string
	opener    Opener
	isolation Isolation
	metrics   *Metrics
	logger    logger.Logger
}

// NewLoader 创建扫描 dir 的加载器。
func NewLoader(dir string, opts ...Option) *Loader {
	l := &Loader{
		dir:    dir,
		ext:    DefaultExtension(),
		opener: GoOpener{},
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir 返回扫描目录。
func (l *Loader) Dir() string {
	return l.dir
}

// Discover 扫描目录并把模块注册进 reg。
//
// 目录不存在时返回空报告。只有目录本身无法读取或 ctx 被取消时才返回错误，
// 此时报告仍包含已经处理的产物。
func (l *Loader) Discover(ctx context.Context, reg Registry) (*Report, error) {
	report := &Report{}

	artifacts, err := l.artifacts()
	if err != nil {
		return report, err
	}

	for _, c := range artifacts {
		if err := ctx.Err(); err != nil {
			return report, errors.Wrap(err, "plugin: discovery interrupted")
		}
		report.Artifacts = append(report.Artifacts, c.path)
		if c.err != nil {
			l.fail(report, Failure{Artifact: c.path, Err: c.err})
			l.metrics.artifact(resultFailed)
			continue
		}
		l.loadArtifact(c.path, reg, report)
	}
	return report, nil
}

// candidate 是一个待加载的产物。err 非空表示符号链接无法解析。
type candidate struct {
	path string
	err  error
}

// artifacts 返回目录中扩展名匹配的普通文件，符号链接按其目标判断。
func (l *Loader) artifacts() ([]candidate, error) {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "plugin: read directory %s", l.dir)
	}

	out := make([]candidate, 0, len(entries))
	for _, entry := range entries {
		if !strings.EqualFold(filepath.Ext(entry.Name()), l.ext) {
			continue
		}
		path, err := filepath.Abs(filepath.Join(l.dir, entry.Name()))
		if err != nil {
			path = filepath.Join(l.dir, entry.Name())
		}

		mode := entry.Type()
		if mode&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				out = append(out, candidate{path: path, err: errors.Wrap(err, "plugin: resolve symlink")})
				continue
			}
			mode = info.Mode().Type()
		}
		if !mode.IsRegular() {
			continue
		}
		out = append(out, candidate{path: path})
	}
	return out, nil
}

func (l *Loader) loadArtifact(path string, reg Registry, report *Report) {
	l.logger.Info("loading plugin", logger.Field{Key: "artifact", Value: filepath.Base(path)})

	ctors, err := l.open(path)
	if err != nil {
		l.fail(report, Failure{Artifact: path, Err: err})
		l.metrics.artifact(resultFailed)
		return
	}

	failed := false
	for i, ctor := range ctors {
		name, err := l.activate(ctor, reg)
		if err != nil {
			failed = true
			if name == "" {
				name = "#" + strconv.Itoa(i)
			}
			l.metrics.module(resultFailed)
			if l.isolation == IsolationArtifact {
				l.fail(report, Failure{Artifact: path, Module: name, Skipped: len(ctors) - i - 1, Err: err})
				break
			}
			l.fail(report, Failure{Artifact: path, Module: name, Err: err})
			continue
		}
		reg.TrackModule(name, path)
		report.Activated = append(report.Activated, Activation{Artifact: path, Module: name})
		l.metrics.module(resultLoaded)
	}

	if failed {
		l.metrics.artifact(resultFailed)
		return
	}
	l.metrics.artifact(resultLoaded)
}

// open 加载产物并解析入口，panic 视为失败。
func (l *Loader) open(path string) (ctors []module.Constructor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(fault.FromPanic(r), "plugin")
		}
	}()
	syms, err := l.opener.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "plugin: open")
	}
	return constructors(syms)
}

// activate 构造模块并调用 Load，panic 视为失败。
// 构造成功后即使 Load 失败也会返回模块名。
func (l *Loader) activate(ctor module.Constructor, reg Registry) (name string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(fault.FromPanic(r), "plugin")
		}
	}()
	if ctor == nil {
		return "", errors.New("plugin: nil constructor")
	}
	m, err := ctor()
	if err != nil {
		return "", errors.Wrap(err, "plugin: construct module")
	}
	if m == nil {
		return "", errors.New("plugin: constructor returned nil module")
	}
	name = m.Name()
	l.logger.Info("activating module", logger.Field{Key: "module", Value: name})
	if err := m.Load(reg); err != nil {
		return name, errors.Wrapf(err, "plugin: load module %q", name)
	}
	return name, nil
}

func (l *Loader) fail(report *Report, f Failure) {
	report.Failures = append(report.Failures, f)
	fields := []logger.Field{
		{Key: "artifact", Value: f.Artifact},
		{Key: "error", Value: f.Err},
	}
	if f.Module != "" {
		fields = append(fields, logger.Field{Key: "module", Value: f.Module})
	}
	if f.Skipped > 0 {
		fields = append(fields, logger.Field{Key: "skipped", Value: f.Skipped})
	}
	l.logger.Warn("an error occurred while trying to load plugin", fields...)
}
