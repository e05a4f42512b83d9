package engine

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"

	"github.com/lk2023060901/zeus-host/pkg/logger"
)

// ErrClosed 表示引擎已经释放。
var ErrClosed = errors.New("engine: closed")

// Engine 是宿主交出控制权的运行循环。
type Engine interface {
	// Run 阻塞执行运行循环，直到 ctx 取消或循环自身退出。
	Run(ctx context.Context) error
	// Close 释放引擎资源，在所有退出路径上都会被调用。
	Close() error
}

// Factory 按窗口尺寸创建引擎。
type Factory func(width, height int) (Engine, error)

// Frame 描述一帧的调度信息。
type Frame struct {
	// Index 从 1 开始的帧序号。
	Index uint64
	// Delta 距上一帧的时间。
	Delta time.Duration
	// Width、Height 是引擎创建时的尺寸。
	Width, Height int
}

// UpdateFunc 每帧调用一次，返回错误会终止运行循环。
type UpdateFunc func(ctx context.Context, f Frame) error

// Options 配置无界面引擎。
type Options struct {
	// Interval 帧间隔，<= 0 时使用 16ms。
	Interval time.Duration
	// Update 每帧回调，可以为 nil。
	Update UpdateFunc
	// Logger 日志，nil 时使用 Nop。
	Logger logger.Logger
}

// Headless 是不渲染画面、按固定帧间隔驱动 Update 的引擎。
type Headless struct {
	width, height int
	interval      time.Duration
	update        UpdateFunc
	logger        logger.Logger

	running atomic.Bool
	closed  atomic.Bool
	frames  atomic.Uint64
}

// NewHeadless 创建无界面引擎。
func NewHeadless(width, height int, opts Options) *Headless {
	if opts.Interval <= 0 {
		opts.Interval = 16 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Headless{
		width:    width,
		height:   height,
		interval: opts.Interval,
		update:   opts.Update,
		logger:   opts.Logger,
	}
}

// HeadlessFactory 返回创建 Headless 的 Factory。
func HeadlessFactory(opts Options) Factory {
	return func(width, height int) (Engine, error) {
		if width <= 0 || height <= 0 {
			return nil, errors.Newf("engine: invalid size %dx%d", width, height)
		}
		return NewHeadless(width, height, opts), nil
	}
}

// Run 执行运行循环。ctx 取消时返回 nil。
func (e *Headless) Run(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine: already running")
	}
	defer e.running.Store(false)

	e.logger.Info("engine started",
		logger.Field{Key: "width", Value: e.width},
		logger.Field{Key: "height", Value: e.height},
		logger.Field{Key: "interval", Value: e.interval},
	)

	tk := time.NewTicker(e.interval)
	defer tk.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped", logger.Field{Key: "frames", Value: e.frames.Load()})
			return nil
		case now := <-tk.C:
			if e.closed.Load() {
				return ErrClosed
			}
			frame := Frame{
				Index:  e.frames.Inc(),
				Delta:  now.Sub(last),
				Width:  e.width,
				Height: e.height,
			}
			last = now
			if e.update == nil {
				continue
			}
			if err := e.update(ctx, frame); err != nil {
				return errors.Wrapf(err, "engine: frame %d", frame.Index)
			}
		}
	}
}

// Close 释放引擎，重复调用返回 ErrClosed。
func (e *Headless) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return nil
}

// Frames 返回已执行的帧数。
func (e *Headless) Frames() uint64 {
	return e.frames.Load()
}

// Size 返回引擎尺寸。
func (e *Headless) Size() (int, int) {
	return e.width, e.height
}

var _ Engine = (*Headless)(nil)
