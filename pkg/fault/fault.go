package fault

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"

	"github.com/lk2023060901/zeus-host/pkg/logger"
)

// Sink 是全局异常汇聚点，所有未处理或未被观察的错误最终都转发到这里。
type Sink interface {
	// OnError 上报一个错误，仅用于诊断，不得改变调用方的控制流。
	OnError(err error)
}

// SinkFunc 将函数适配为 Sink。
type SinkFunc func(err error)

// OnError 调用 f(err)。
func (f SinkFunc) OnError(err error) {
	f(err)
}

// Handler 是默认的全局异常处理器，将错误连同堆栈写入日志。
type Handler struct {
	logger logger.Logger
	count  atomic.Int64
}

// NewHandler 创建一个写入 l 的异常处理器，l 为 nil 时使用 Nop。
func NewHandler(l logger.Logger) *Handler {
	if l == nil {
		l = logger.Nop()
	}
	return &Handler{logger: l}
}

// OnError 记录错误及其堆栈。
func (h *Handler) OnError(err error) {
	if err == nil {
		return
	}
	h.count.Inc()
	h.logger.Error("unhandled error",
		logger.Field{Key: "error", Value: err},
		logger.Field{Key: "detail", Value: fmt.Sprintf("%+v", err)},
	)
}

// Count 返回已上报的错误数量。
func (h *Handler) Count() int64 {
	return h.count.Load()
}

// FromPanic 将 recover 得到的值转换为带堆栈的错误。
func FromPanic(r any) error {
	if err, ok := r.(error); ok {
		return errors.Wrap(err, "panic")
	}
	return errors.Newf("panic: %v", r)
}

var _ Sink = (*Handler)(nil)
