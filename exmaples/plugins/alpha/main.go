// alpha 是一个示例插件：
//
//	go build -buildmode=plugin -o plugins/alpha.so ./exmaples/plugins/alpha
package main

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/zeus-host/pkg/container"
	"github.com/lk2023060901/zeus-host/pkg/logger"
	"github.com/lk2023060901/zeus-host/pkg/module"
	"github.com/lk2023060901/zeus-host/pkg/scheduler"
)

// Modules 是宿主查找的入口。
var Modules = []module.Constructor{
	func() (module.Module, error) { return &alpha{}, nil },
}

type alpha struct {
	jobID scheduler.JobID
}

func (*alpha) Name() string {
	return "Alpha"
}

func (a *alpha) Load(reg module.Registry) error {
	l, ok := container.Resolve[logger.Logger](reg, module.KeyLogger)
	if !ok {
		l = logger.Nop()
	}
	l = l.With(logger.Field{Key: "module", Value: a.Name()})

	sched, ok := container.Resolve[*scheduler.Scheduler](reg, module.KeyScheduler)
	if !ok {
		return errors.New("alpha: scheduler not available")
	}
	id, err := sched.AddFunc("alpha.heartbeat", "@every 30s", func(ctx context.Context) error {
		l.Info("heartbeat", logger.Field{Key: "at", Value: time.Now()})
		return nil
	}, scheduler.WithOwner(a.Name()))
	if err != nil {
		return errors.Wrap(err, "alpha: schedule heartbeat")
	}
	a.jobID = id

	reg.Register("alpha.greeter", func(name string) string { return "hello, " + name })
	return nil
}

func (a *alpha) Unload(reg module.Registry) error {
	if sched, ok := container.Resolve[*scheduler.Scheduler](reg, module.KeyScheduler); ok {
		sched.RemoveJob(a.jobID)
	}
	return nil
}

func main() {}
