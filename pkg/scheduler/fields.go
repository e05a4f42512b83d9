package scheduler

import (
	"fmt"

	"github.com/lk2023060901/zeus-host/pkg/logger"
)

// logFields 返回任务的标识字段，并追加 kv 中的键值对。
func (e *jobEntry) logFields(kv ...any) []logger.Field {
	out := make([]logger.Field, 0, 3+len(kv)/2)
	out = append(out,
		logger.Field{Key: "job_id", Value: e.id},
		logger.Field{Key: "job_name", Value: e.name},
	)
	if e.owner != "" {
		out = append(out, logger.Field{Key: "owner", Value: e.owner})
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		out = append(out, logger.Field{Key: key, Value: kv[i+1]})
	}
	return out
}
