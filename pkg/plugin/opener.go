package plugin

import (
	goplugin "plugin"
	"runtime"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/zeus-host/pkg/module"
)

var (
	// ErrNoEntryPoint 表示产物没有导出 module.EntryPoint。
	ErrNoEntryPoint = errors.New("plugin: entry point not found")
	// ErrBadEntryPoint 表示导出的入口类型不符合约定。
	ErrBadEntryPoint = errors.New("plugin: entry point has unexpected type")
)

// Symbols 是已加载产物的符号表。*plugin.Plugin 满足该接口。
type Symbols interface {
	Lookup(name string) (goplugin.Symbol, error)
}

// Opener 加载一个二进制产物。
type Opener interface {
	Open(path string) (Symbols, error)
}

// OpenerFunc 将函数适配为 Opener。
type OpenerFunc func(path string) (Symbols, error)

// Open 调用 f(path)。
func (f OpenerFunc) Open(path string) (Symbols, error) {
	return f(path)
}

// GoOpener 使用标准库 plugin 包加载以 -buildmode=plugin 构建的产物。
type GoOpener struct{}

// Open 加载 path 处的产物。
func (GoOpener) Open(path string) (Symbols, error) {
	p, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DefaultExtension 返回当前平台的动态库扩展名。
func DefaultExtension() string {
	if runtime.GOOS == "windows" {
		return ".dll"
	}
	return ".so"
}

// constructors 解析入口符号。入口可以是 []module.Constructor 变量或
// func() []module.Constructor 函数。
func constructors(syms Symbols) ([]module.Constructor, error) {
	sym, err := syms.Lookup(module.EntryPoint)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "plugin: lookup entry point"), ErrNoEntryPoint)
	}
	switch v := sym.(type) {
	case *[]module.Constructor:
		if v == nil {
			return nil, nil
		}
		return *v, nil
	case func() []module.Constructor:
		return v(), nil
	default:
		return nil, errors.Wrapf(ErrBadEntryPoint, "%T", sym)
	}
}
