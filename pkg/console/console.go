package console

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/atomic"
)

// Console 是进程控制台的挂接与分离。
type Console interface {
	// HasConsole 返回当前进程是否已有可用控制台。
	HasConsole() bool
	// Show 挂接控制台。
	Show() error
	// Hide 分离控制台。
	Hide() error
}

// Manager 是基于标准输出的控制台实现。
//
// 标准输出已经连到终端时视为已有控制台；否则 Show 之后控制台输出
// 写入 Writer（默认 os.Stdout），Hide 之后写入被丢弃。
type Manager struct {
	out      io.Writer
	terminal bool
	attached atomic.Bool
}

// NewManager 创建一个检测 os.Stdout 的控制台管理器。
func NewManager() *Manager {
	fd := os.Stdout.Fd()
	return &Manager{
		out:      os.Stdout,
		terminal: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

// NewManagerWithWriter 创建一个写入 w 的控制台管理器，w 不视为终端。
func NewManagerWithWriter(w io.Writer) *Manager {
	return &Manager{out: w}
}

// HasConsole 返回是否已连到终端或已经 Show 过。
func (m *Manager) HasConsole() bool {
	return m.terminal || m.attached.Load()
}

// Show 挂接控制台。
func (m *Manager) Show() error {
	m.attached.Store(true)
	return nil
}

// Hide 分离控制台。
func (m *Manager) Hide() error {
	m.attached.Store(false)
	return nil
}

// Write 在控制台可用时写出 p，否则丢弃。
func (m *Manager) Write(p []byte) (int, error) {
	if !m.HasConsole() {
		return len(p), nil
	}
	return m.out.Write(p)
}

var _ Console = (*Manager)(nil)
