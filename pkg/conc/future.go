package conc

import (
	"github.com/lk2023060901/zeus-host/pkg/fault"
)

// Future 表示一个异步计算的结果。
type Future[T any] struct {
	ch    chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{ch: make(chan struct{})}
}

func (f *Future[T]) complete(value T, err error) {
	f.value = value
	f.err = err
	close(f.ch)
}

// Done 返回在计算结束时关闭的通道。
func (f *Future[T]) Done() <-chan struct{} {
	return f.ch
}

// Await 阻塞直到计算结束，返回结果与错误。
func (f *Future[T]) Await() (T, error) {
	<-f.ch
	return f.value, f.err
}

// Err 阻塞直到计算结束，返回错误。
func (f *Future[T]) Err() error {
	<-f.ch
	return f.err
}

// Go 在新的 goroutine 中执行 fn，fn 中的 panic 会转换为错误。
func Go[T any](fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	go func() {
		f.complete(call(fn))
	}()
	return f
}

// BlockOnAll 等待所有 future 结束，返回遇到的第一个错误。
func BlockOnAll[T any](futures ...*Future[T]) error {
	var first error
	for _, f := range futures {
		if err := f.Err(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func call[T any](fn func() (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fault.FromPanic(r)
		}
	}()
	return fn()
}
