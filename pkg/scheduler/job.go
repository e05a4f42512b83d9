// pkg/scheduler/job.go
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/atomic"
)

// JobID 任务唯一标识
type JobID = cron.EntryID

// JobFunc 任务函数，ctx 在调度器停止时取消
type JobFunc func(ctx context.Context) error

// JobInfo 任务信息
type JobInfo struct {
	// ID 任务唯一标识
	ID JobID

	// Name 任务名称
	Name string

	// Spec Cron 表达式
	Spec string

	// Owner 注册该任务的模块名称
	Owner string

	// LastRun 上次执行时间
	LastRun time.Time

	// NextRun 下次执行时间
	NextRun time.Time

	// RunCount 执行次数
	RunCount int64

	// FailCount 失败次数（含 panic）
	FailCount int64

	// Running 是否正在执行
	Running bool
}

// jobEntry 内部任务条目
type jobEntry struct {
	id        JobID
	name      string
	spec      string
	owner     string
	fn        JobFunc
	runCount  atomic.Int64
	failCount atomic.Int64
	running   atomic.Bool
	lastRun   atomic.Time
}

// JobOption 任务选项函数
type JobOption func(*jobEntry)

// WithOwner 标记任务所属模块，用于日志与诊断
func WithOwner(owner string) JobOption {
	return func(e *jobEntry) {
		e.owner = owner
	}
}

func (e *jobEntry) info(next time.Time) *JobInfo {
	return &JobInfo{
		ID:        e.id,
		Name:      e.name,
		Spec:      e.spec,
		Owner:     e.owner,
		LastRun:   e.lastRun.Load(),
		NextRun:   next,
		RunCount:  e.runCount.Load(),
		FailCount: e.failCount.Load(),
		Running:   e.running.Load(),
	}
}
