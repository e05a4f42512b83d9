package settings

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Settings 是持久化的用户设置。
type Settings struct {
	Debug  DebugSettings  `yaml:"debug"`
	Game   GameSettings   `yaml:"game"`
	Server ServerSettings `yaml:"server"`
	Data   DataSettings   `yaml:"data"`
}

// DebugSettings 调试相关设置。
type DebugSettings struct {
	// IsConsoleEnabled 为 true 时启动阶段会挂接控制台。
	IsConsoleEnabled bool `yaml:"console_enabled"`
}

// GameSettings 游戏相关设置。
type GameSettings struct {
	AlwaysRun bool `yaml:"always_run"`
}

// ServerSettings 登录服务器设置。
type ServerSettings struct {
	Address  string `yaml:"address"`
	Port     int    `yaml:"port"`
	UserName string `yaml:"user_name"`
}

// DataSettings 客户端数据目录设置。
type DataSettings struct {
	Directory string `yaml:"directory"`
}

// Defaults 返回尚未持久化时使用的设置。
func Defaults() Settings {
	return Settings{
		Server: ServerSettings{
			Address: "127.0.0.1",
			Port:    2593,
		},
	}
}

// Backend 负责设置文档的读写。
type Backend interface {
	// Load 读取文档；文档从未被写入时 found 为 false。
	Load(ctx context.Context) (doc []byte, found bool, err error)
	// Save 写入文档。
	Save(ctx context.Context, doc []byte) error
}

// Store 是持久化设置存储。
type Store struct {
	backend Backend

	mu      sync.RWMutex
	current Settings
	created bool
}

// Open 从 backend 读取设置。文档不存在时使用 Defaults，IsCreated 返回 false。
func Open(ctx context.Context, backend Backend) (*Store, error) {
	if backend == nil {
		return nil, errors.New("settings: backend is nil")
	}
	doc, found, err := backend.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "settings: load")
	}

	s := &Store{backend: backend, current: Defaults(), created: found}
	if found {
		if err := yaml.Unmarshal(doc, &s.current); err != nil {
			return nil, errors.Wrap(err, "settings: decode")
		}
	}
	return s, nil
}

// IsCreated 返回设置文档是否曾经被创建过。
func (s *Store) IsCreated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.created
}

// Get 返回当前设置的副本。
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update 在锁内修改当前设置，修改不会自动持久化。
func (s *Store) Update(fn func(*Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.current)
}

// Save 持久化当前设置。
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := yaml.Marshal(&s.current)
	if err != nil {
		return errors.Wrap(err, "settings: encode")
	}
	if err := s.backend.Save(ctx, doc); err != nil {
		return errors.Wrap(err, "settings: save")
	}
	s.created = true
	return nil
}
