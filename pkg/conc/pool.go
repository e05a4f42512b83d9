package conc

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"

	"github.com/lk2023060901/zeus-host/pkg/fault"
)

// ErrPoolClosed 表示协程池已释放。
var ErrPoolClosed = errors.New("conc: pool is closed")

// ReportFunc 接收没有调用方观察的后台错误。
type ReportFunc func(err error)

// PoolOption 配置 Pool。
type PoolOption func(*poolOptions)

type poolOptions struct {
	report      ReportFunc
	nonblocking bool
}

// WithReporter 设置后台错误的上报目标。
func WithReporter(report ReportFunc) PoolOption {
	return func(o *poolOptions) {
		o.report = report
	}
}

// WithNonblocking 池满时立即失败而不是等待。
func WithNonblocking() PoolOption {
	return func(o *poolOptions) {
		o.nonblocking = true
	}
}

// Pool 是基于 ants 的协程池。
//
// 通过 Submit 提交的任务由调用方经 Future 观察结果；
// 通过 Go 提交的任务无人观察，其错误与 panic 都交给 ReportFunc。
type Pool[T any] struct {
	inner  *ants.Pool
	report ReportFunc
}

// NewPool 创建容量为 size 的协程池。
func NewPool[T any](size int, opts ...PoolOption) (*Pool[T], error) {
	o := poolOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	p := &Pool[T]{report: o.report}

	inner, err := ants.NewPool(size,
		ants.WithNonblocking(o.nonblocking),
		ants.WithPanicHandler(func(r any) {
			p.reportErr(fault.FromPanic(r))
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "conc: create pool")
	}
	p.inner = inner
	return p, nil
}

// NewDefaultPool 创建容量为 CPU 核数两倍的协程池。
func NewDefaultPool[T any](opts ...PoolOption) (*Pool[T], error) {
	return NewPool[T](runtime.GOMAXPROCS(0)*2, opts...)
}

// Submit 提交一个需要观察结果的任务。
func (p *Pool[T]) Submit(fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	err := p.inner.Submit(func() {
		f.complete(call(fn))
	})
	if err != nil {
		var zero T
		f.complete(zero, p.wrapSubmitErr(err))
	}
	return f
}

// Go 提交一个无人观察的任务，任务的错误与 panic 都会被上报。
func (p *Pool[T]) Go(fn func() error) error {
	err := p.inner.Submit(func() {
		_, err := call(func() (struct{}, error) {
			return struct{}{}, fn()
		})
		p.reportErr(err)
	})
	if err != nil {
		return p.wrapSubmitErr(err)
	}
	return nil
}

// Running 返回正在运行的任务数。
func (p *Pool[T]) Running() int {
	return p.inner.Running()
}

// Cap 返回池容量。
func (p *Pool[T]) Cap() int {
	return p.inner.Cap()
}

// Release 释放协程池，已提交的任务继续执行完毕。
func (p *Pool[T]) Release() {
	p.inner.Release()
}

func (p *Pool[T]) reportErr(err error) {
	if err == nil || p.report == nil {
		return
	}
	p.report(err)
}

func (p *Pool[T]) wrapSubmitErr(err error) error {
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return errors.Wrap(err, "conc: submit")
}
