package module

// EntryPoint 是插件产物必须导出的符号名。
//
// 符号可以是 []Constructor 变量，也可以是 func() []Constructor 函数。
const EntryPoint = "Modules"

// Registry 是模块在 Load/Unload 期间可见的服务注册表视图。
//
// 注册是追加式的：同一个 key 可以多次注册，注册表不提供删除操作。
type Registry interface {
	// Register 在 key 下追加一个实现。
	Register(key string, value any)
	// Resolve 返回 key 下最近一次注册的实现。
	Resolve(key string) (any, bool)
	// Keys 返回所有已注册的 key。
	Keys() []string
}

// Module 定义扩展模块的契约。
type Module interface {
	// Name 返回模块的展示名称，仅用于日志与诊断。
	Name() string
	// Load 向注册表写入该模块提供的所有注册项。
	// 返回错误或 panic 都表示该模块激活失败。
	Load(reg Registry) error
	// Unload 撤销该模块的注册项。宿主目前不会调用它。
	Unload(reg Registry) error
}

// Constructor 构造一个模块实例。
type Constructor func() (Module, error)
