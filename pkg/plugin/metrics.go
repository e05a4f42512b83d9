package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultLoaded = "loaded"
	resultFailed = "failed"
)

// Metrics 记录插件加载结果。零值与 nil 均可安全使用，此时不记录任何指标。
type Metrics struct {
	artifacts *prometheus.CounterVec
	modules   *prometheus.CounterVec
}

// NewMetrics 创建并注册插件加载指标。
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zeus",
			Subsystem: "plugin",
			Name:      "artifacts_total",
			Help:      "Plugin artifacts processed during discovery, by result.",
		}, []string{"result"}),
		modules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zeus",
			Subsystem: "plugin",
			Name:      "modules_total",
			Help:      "Plugin modules activated or failed during discovery, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.artifacts, m.modules} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) artifact(result string) {
	if m == nil || m.artifacts == nil {
		return
	}
	m.artifacts.WithLabelValues(result).Inc()
}

func (m *Metrics) module(result string) {
	if m == nil || m.modules == nil {
		return
	}
	m.modules.WithLabelValues(result).Inc()
}
