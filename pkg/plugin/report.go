package plugin

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Isolation 决定产物内某个模块失败后如何处理同一产物中的其它模块。
type Isolation int

const (
	// IsolationModule 每个模块独立隔离，失败的模块不影响同产物中后续模块。
	IsolationModule Isolation = iota
	// IsolationArtifact 以产物为单位隔离，第一个失败的模块之后的模块都被跳过。
	IsolationArtifact
)

// String 返回配置中使用的名称。
func (i Isolation) String() string {
	switch i {
	case IsolationModule:
		return "module"
	case IsolationArtifact:
		return "artifact"
	default:
		return fmt.Sprintf("isolation(%d)", int(i))
	}
}

// ParseIsolation 解析配置中的隔离级别，空字符串表示 IsolationModule。
func ParseIsolation(raw string) (Isolation, error) {
	switch raw {
	case "", "module":
		return IsolationModule, nil
	case "artifact":
		return IsolationArtifact, nil
	default:
		return IsolationModule, errors.Newf("plugin: invalid isolation %q", raw)
	}
}

// Activation 记录一个成功激活的模块。
type Activation struct {
	// Artifact 产物完整路径。
	Artifact string
	// Module 模块名称。
	Module string
}

// Failure 记录一次失败。
type Failure struct {
	// Artifact 产物完整路径。
	Artifact string
	// Module 失败的模块名称；产物级失败（打开、查找入口）为空。
	// 构造失败时模块名未知，记为 "#<序号>"。
	Module string
	// Skipped 是 IsolationArtifact 下因此次失败被跳过的模块数。
	Skipped int
	// Err 失败原因。
	Err error
}

// Report 是一次发现过程的结果。
type Report struct {
	// Artifacts 按处理顺序列出所有候选产物的完整路径。
	Artifacts []string
	// Activated 成功激活的模块。
	Activated []Activation
	// Failures 失败记录。
	Failures []Failure
}

// ModuleNames 返回成功激活的模块名称。
func (r *Report) ModuleNames() []string {
	names := make([]string, 0, len(r.Activated))
	for _, a := range r.Activated {
		names = append(names, a.Module)
	}
	return names
}

// FailuresFor 返回某个产物的失败记录。
func (r *Report) FailuresFor(artifact string) []Failure {
	var out []Failure
	for _, f := range r.Failures {
		if f.Artifact == artifact {
			out = append(out, f)
		}
	}
	return out
}
