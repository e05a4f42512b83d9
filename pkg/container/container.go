package container

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/zeus-host/pkg/module"
)

// OriginBuiltin 表示随宿主编译的内置模块来源。
const OriginBuiltin = "builtin"

// ModuleRecord 记录一个已激活的模块。
type ModuleRecord struct {
	// Name 模块名称。
	Name string
	// Origin 模块来源，内置模块为 OriginBuiltin，插件模块为产物路径。
	Origin string
}

// Container 是进程级服务注册表。
//
// 注册只追加不删除；同一 key 的多次注册按顺序保留。
type Container struct {
	mu      sync.RWMutex
	entries map[string][]any
	modules []ModuleRecord
}

// New 创建一个空的注册表。
func New() *Container {
	return &Container{
		entries: make(map[string][]any),
	}
}

// Register 在 key 下追加一个实现。空 key 会被忽略。
func (c *Container) Register(key string, value any) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = append(c.entries[key], value)
}

// Resolve 返回 key 下最近一次注册的实现。
func (c *Container) Resolve(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	values := c.entries[key]
	if len(values) == 0 {
		return nil, false
	}
	return values[len(values)-1], true
}

// ResolveAll 按注册顺序返回 key 下的全部实现。
func (c *Container) ResolveAll(key string) []any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]any(nil), c.entries[key]...)
}

// Keys 返回已注册的 key，按字典序排列。
func (c *Container) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// TrackModule 记录一个已成功激活的模块。
func (c *Container) TrackModule(name, origin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modules = append(c.modules, ModuleRecord{Name: name, Origin: origin})
}

// Modules 返回已激活模块的记录。
func (c *Container) Modules() []ModuleRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ModuleRecord(nil), c.modules...)
}

// RegisterModule 注册一个编译期已知的内置模块类型。
//
// 模块以零值构造，随后以 c 调用 Load；Load 的错误原样返回。
func RegisterModule[T any, P interface {
	*T
	module.Module
}](c *Container) error {
	m := P(new(T))
	if err := m.Load(c); err != nil {
		return errors.Wrapf(err, "container: load builtin module %q", m.Name())
	}
	c.TrackModule(m.Name(), OriginBuiltin)
	return nil
}

// Resolve 按类型取出 key 下最近一次注册的实现。
func Resolve[T any](reg module.Registry, key string) (T, bool) {
	var zero T
	v, ok := reg.Resolve(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

var _ module.Registry = (*Container)(nil)
