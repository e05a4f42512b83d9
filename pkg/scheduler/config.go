// pkg/scheduler/config.go
package scheduler

// Config 调度器配置
type Config struct {
	// Timezone 时区，默认 Local
	Timezone string `yaml:"timezone"`

	// WithSeconds 是否启用秒级精度（6位表达式），默认 false
	WithSeconds bool `yaml:"with_seconds"`

	// SkipIfStillRunning 如果上次执行未完成则跳过，默认 true
	SkipIfStillRunning bool `yaml:"skip_if_still_running"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Timezone:           "Local",
		WithSeconds:        false,
		SkipIfStillRunning: true,
	}
}
