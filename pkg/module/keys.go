package module

// 宿主在激活任何模块之前注册的服务 key。
const (
	// KeyLogger 对应 logger.Logger。
	KeyLogger = "core.logger"
	// KeySettings 对应 *settings.Store。
	KeySettings = "core.settings"
	// KeyFault 对应 fault.Sink。
	KeyFault = "core.fault"
	// KeyPool 对应 *conc.Pool[struct{}]，用于提交无人等待的后台任务。
	KeyPool = "core.pool"
	// KeyScheduler 对应 *scheduler.Scheduler。
	KeyScheduler = "core.scheduler"
	// KeyMetrics 对应 prometheus.Registerer。
	KeyMetrics = "core.metrics"
	// KeyRunID 对应本次进程运行的 ID（string）。
	KeyRunID = "core.run_id"
)
