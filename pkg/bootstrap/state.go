package bootstrap

// State 表示 Bootstrapper 所处的阶段。
type State int32

const (
	// StateUninitialized 尚未调用 Initialize。
	StateUninitialized State = iota
	// StateInitializing 正在准备运行环境与加载模块。
	StateInitializing
	// StateRunning 引擎运行循环正在执行。
	StateRunning
	// StateTerminated Initialize 已返回（或 panic 正在向上传播）。
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
