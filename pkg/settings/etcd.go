package settings

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// EtcdConfig 是 etcd 后端配置。
type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints" env:"ZEUS_SETTINGS_ETCD_ENDPOINTS" envSeparator:","`
	Key         string        `yaml:"key" env:"ZEUS_SETTINGS_ETCD_KEY"`
	Username    string        `yaml:"username" env:"ZEUS_SETTINGS_ETCD_USERNAME"`
	Password    string        `yaml:"password" env:"ZEUS_SETTINGS_ETCD_PASSWORD"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"ZEUS_SETTINGS_ETCD_DIAL_TIMEOUT"`
	MaxRetries  uint64        `yaml:"max_retries" env:"ZEUS_SETTINGS_ETCD_MAX_RETRIES"`
}

// DefaultEtcdConfig 返回默认配置。
func DefaultEtcdConfig() EtcdConfig {
	return EtcdConfig{
		Endpoints:   []string{"localhost:2379"},
		Key:         "/zeus/settings",
		DialTimeout: 5 * time.Second,
		MaxRetries:  3,
	}
}

// EtcdBackend 将设置文档保存在 etcd 的单个 key 下。
type EtcdBackend struct {
	kv         clientv3.KV
	key        string
	maxRetries uint64
	closer     func() error
}

// NewEtcdBackend 连接 etcd 并创建后端。
func NewEtcdBackend(cfg EtcdConfig) (*EtcdBackend, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("settings: etcd endpoints cannot be empty")
	}
	if cfg.Key == "" {
		return nil, errors.New("settings: etcd key cannot be empty")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultEtcdConfig().DialTimeout
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialOptions: []grpc.DialOption{
			grpc.WithDisableServiceConfig(),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "settings: connect etcd")
	}

	b := NewEtcdBackendFromKV(cli.KV, cfg.Key, cfg.MaxRetries)
	b.closer = cli.Close
	return b, nil
}

// NewEtcdBackendFromKV 使用现有的 KV 客户端创建后端。
func NewEtcdBackendFromKV(kv clientv3.KV, key string, maxRetries uint64) *EtcdBackend {
	return &EtcdBackend{kv: kv, key: key, maxRetries: maxRetries}
}

// Load 读取文档，key 不存在时 found 为 false。
func (b *EtcdBackend) Load(ctx context.Context) ([]byte, bool, error) {
	var (
		doc   []byte
		found bool
	)
	err := b.retry(ctx, func() error {
		resp, err := b.kv.Get(ctx, b.key)
		if err != nil {
			return err
		}
		if len(resp.Kvs) == 0 {
			doc, found = nil, false
			return nil
		}
		doc, found = resp.Kvs[0].Value, true
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrapf(err, "settings: etcd get %s", b.key)
	}
	return doc, found, nil
}

// Save 写入文档。
func (b *EtcdBackend) Save(ctx context.Context, doc []byte) error {
	err := b.retry(ctx, func() error {
		_, err := b.kv.Put(ctx, b.key, string(doc))
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "settings: etcd put %s", b.key)
	}
	return nil
}

// Close 关闭由 NewEtcdBackend 创建的连接。
func (b *EtcdBackend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

func (b *EtcdBackend) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = time.Second
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, b.maxRetries), ctx))
}

var _ Backend = (*EtcdBackend)(nil)
