// pkg/scheduler/scheduler.go
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/lk2023060901/zeus-host/pkg/conc"
	"github.com/lk2023060901/zeus-host/pkg/fault"
	"github.com/lk2023060901/zeus-host/pkg/logger"
)

// ErrJobNotFound 任务不存在
var ErrJobNotFound = errors.New("scheduler: job not found")

// Scheduler 调度器
//
// 任务在 cron 自己的 goroutine 上执行，没有调用方观察结果，
// 因此任务的错误与 panic 都交给 reporter。
type Scheduler struct {
	cron     *cron.Cron
	config   *Config
	logger   logger.Logger
	pool     *conc.Pool[struct{}]
	reporter conc.ReportFunc

	jobs   map[JobID]*jobEntry
	jobsMu sync.RWMutex

	running bool
	runMu   sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// SchedulerOption 调度器选项
type SchedulerOption func(*Scheduler)

// WithLogger 设置日志记录器
func WithLogger(l logger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPool 设置 RunNow 使用的协程池
func WithPool(pool *conc.Pool[struct{}]) SchedulerOption {
	return func(s *Scheduler) {
		s.pool = pool
	}
}

// WithReporter 设置任务失败的上报目标
func WithReporter(report conc.ReportFunc) SchedulerOption {
	return func(s *Scheduler) {
		s.reporter = report
	}
}

// New 创建调度器
func New(cfg *Config, opts ...SchedulerOption) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "scheduler: invalid timezone %s", cfg.Timezone)
	}

	cronOpts := []cron.Option{
		cron.WithLocation(loc),
	}
	if cfg.WithSeconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(cronOpts...),
		config: cfg,
		logger: logger.Nop(),
		jobs:   make(map[JobID]*jobEntry),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AddFunc 添加函数任务
func (s *Scheduler) AddFunc(name, spec string, fn JobFunc, opts ...JobOption) (JobID, error) {
	if fn == nil {
		return 0, errors.Newf("scheduler: job %s has nil func", name)
	}
	entry := &jobEntry{name: name, spec: spec, fn: fn}
	for _, opt := range opts {
		opt(entry)
	}

	id, err := s.cron.AddJob(spec, s.wrapJob(entry))
	if err != nil {
		return 0, errors.Wrapf(err, "scheduler: add job %s", name)
	}
	entry.id = id

	s.jobsMu.Lock()
	s.jobs[id] = entry
	s.jobsMu.Unlock()

	s.logger.Info("job added", entry.logFields("spec", spec)...)
	return id, nil
}

// wrapJob 包装任务，添加跳过、恢复与上报
func (s *Scheduler) wrapJob(entry *jobEntry) cron.Job {
	return cron.FuncJob(func() {
		if !entry.running.CompareAndSwap(false, true) {
			if s.config.SkipIfStillRunning {
				s.logger.Debug("job skipped, still running", entry.logFields()...)
				return
			}
			entry.running.Store(true)
		}
		defer entry.running.Store(false)

		entry.lastRun.Store(time.Now())
		entry.runCount.Inc()

		startTime := time.Now()
		if err := s.invoke(entry); err != nil {
			entry.failCount.Inc()
			s.logger.Warn("job failed", entry.logFields(
				"duration", time.Since(startTime),
				"error", err,
			)...)
			if s.reporter != nil {
				s.reporter(errors.Wrapf(err, "scheduler: job %s", entry.name))
			}
		}
	})
}

func (s *Scheduler) invoke(entry *jobEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(fault.FromPanic(r), "job")
		}
	}()
	return entry.fn(s.ctx)
}

// RemoveJob 移除任务
func (s *Scheduler) RemoveJob(id JobID) {
	s.cron.Remove(id)

	s.jobsMu.Lock()
	entry, exists := s.jobs[id]
	delete(s.jobs, id)
	s.jobsMu.Unlock()

	if exists {
		s.logger.Info("job removed", entry.logFields()...)
	}
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started")
}

// Stop 停止调度器，等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	s.runMu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// IsRunning 返回调度器是否正在运行
func (s *Scheduler) IsRunning() bool {
	s.runMu.RLock()
	defer s.runMu.RUnlock()
	return s.running
}

// GetJob 获取任务信息
func (s *Scheduler) GetJob(id JobID) (*JobInfo, bool) {
	s.jobsMu.RLock()
	entry, exists := s.jobs[id]
	s.jobsMu.RUnlock()

	if !exists {
		return nil, false
	}
	return entry.info(s.cron.Entry(id).Next), true
}

// ListJobs 列出所有任务
func (s *Scheduler) ListJobs() []*JobInfo {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	jobs := make([]*JobInfo, 0, len(s.jobs))
	for id, entry := range s.jobs {
		jobs = append(jobs, entry.info(s.cron.Entry(id).Next))
	}
	return jobs
}

// RunNow 立即执行任务（不影响调度）
func (s *Scheduler) RunNow(id JobID) error {
	s.jobsMu.RLock()
	entry, exists := s.jobs[id]
	s.jobsMu.RUnlock()

	if !exists {
		return errors.Wrapf(ErrJobNotFound, "id %d", id)
	}

	job := s.wrapJob(entry)
	if s.pool == nil {
		go job.Run()
		return nil
	}
	return s.pool.Go(func() error {
		job.Run()
		return nil
	})
}
