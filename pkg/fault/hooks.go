package fault

import (
	"os"
	"runtime/debug"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
)

// HooksOption 配置 Hooks。
type HooksOption func(*Hooks)

// WithCrashOutput 将运行时致命错误的输出额外写入 path。
//
// 任意 goroutine 中未恢复的 panic 都会让运行时终止进程，该文件保留崩溃现场。
func WithCrashOutput(path string) HooksOption {
	return func(h *Hooks) {
		h.crashPath = path
	}
}

// Hooks 管理进程级的故障钩子。
//
// 钩子只观察、不恢复：Guard 上报后会继续 panic，进程终止行为保持不变。
type Hooks struct {
	sink      Sink
	crashPath string

	once       sync.Once
	installed  atomic.Bool
	crashFile  *os.File
	installErr error
}

// NewHooks 创建转发到 sink 的故障钩子。
func NewHooks(sink Sink, opts ...HooksOption) *Hooks {
	if sink == nil {
		sink = SinkFunc(func(error) {})
	}
	h := &Hooks{sink: sink}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Install 安装钩子，仅第一次调用生效。
func (h *Hooks) Install() error {
	h.once.Do(func() {
		if h.crashPath != "" {
			f, err := os.OpenFile(h.crashPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				h.installErr = errors.Wrapf(err, "fault: open crash output %s", h.crashPath)
			} else if err := debug.SetCrashOutput(f, debug.CrashOptions{}); err != nil {
				_ = f.Close()
				h.installErr = errors.Wrap(err, "fault: set crash output")
			} else {
				h.crashFile = f
			}
		}
		h.installed.Store(true)
	})
	return h.installErr
}

// Installed 返回钩子是否已安装。
func (h *Hooks) Installed() bool {
	return h.installed.Load()
}

// Guard 用于 defer，捕获主 goroutine 上逃逸的 panic。
//
//	defer hooks.Guard()
//
// panic 会先转发给 sink，然后原样继续抛出。
func (h *Hooks) Guard() {
	r := recover()
	if r == nil {
		return
	}
	h.Forward(r)
	panic(r)
}

// Forward 将已经 recover 的 panic 值转发给 sink，钩子未安装时忽略。
//
// 供自行 recover 的 defer 函数使用，调用方负责继续 panic。
func (h *Hooks) Forward(r any) {
	if r == nil || !h.installed.Load() {
		return
	}
	h.sink.OnError(FromPanic(r))
}

// Unobserved 上报一个没有调用方观察的后台错误。
func (h *Hooks) Unobserved(err error) {
	if err == nil || !h.installed.Load() {
		return
	}
	h.sink.OnError(errors.Wrap(err, "unobserved"))
}

// Sink 返回钩子转发的目标。
func (h *Hooks) Sink() Sink {
	return h.sink
}
