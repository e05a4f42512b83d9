package bootstrap

import "github.com/lk2023060901/zeus-host/pkg/module"

// CoreModuleName 是宿主内置模块的名称。
const CoreModuleName = "Zeus Core Module"

// CoreModule 是宿主内置的模块，总是先于任何插件注册。
//
// 它本身不注册服务，宿主服务由 Bootstrapper 在注册它之前放入容器。
type CoreModule struct{}

func (*CoreModule) Name() string {
	return CoreModuleName
}

func (*CoreModule) Load(module.Registry) error {
	return nil
}

func (*CoreModule) Unload(module.Registry) error {
	return nil
}

var _ module.Module = (*CoreModule)(nil)
