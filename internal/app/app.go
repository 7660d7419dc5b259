// Package app 按配置组装 dsync 的各个组件，供 cmd/dsync 与示例程序共用。
//
// 组装顺序：日志 → 指标 → 链路追踪 → Redis 连接 → 熔断 → 存储 → 锁工厂 → 限流器。
// 任何一步失败都会关闭已创建的组件。
package app

import (
	"context"

	"github.com/ceyewan/dsync/breaker"
	"github.com/ceyewan/dsync/clog"
	"github.com/ceyewan/dsync/config"
	"github.com/ceyewan/dsync/connector"
	"github.com/ceyewan/dsync/dlock"
	"github.com/ceyewan/dsync/metrics"
	"github.com/ceyewan/dsync/ratelimit"
	"github.com/ceyewan/dsync/store"
	"github.com/ceyewan/dsync/trace"
	"github.com/ceyewan/dsync/xerrors"
)

// Config 进程配置
//
//	log:
//	  level: info
//	redis:
//	  addr: 127.0.0.1:6379
//	breaker:
//	  failure_ratio: 0.6
//	dlock:
//	  prefix: "myapp:lock:"
//	  lease_seconds: 10
//	ratelimit:
//	  state_prefix: "RedisRateLimiterKey:"
type Config struct {
	Log       clog.Config           `mapstructure:"log"`
	Metrics   metrics.Config        `mapstructure:"metrics"`
	Redis     connector.RedisConfig `mapstructure:"redis"`
	Dlock     dlock.Config          `mapstructure:"dlock"`
	Ratelimit ratelimit.Config      `mapstructure:"ratelimit"`

	// Trace 为空时只生成 TraceID，不导出
	Trace *trace.Config `mapstructure:"trace"`
	// Breaker 为空时不启用熔断
	Breaker *breaker.Config `mapstructure:"breaker"`
}

// DefaultConfig 本地开发使用的默认配置
func DefaultConfig() *Config {
	return &Config{
		Log:     *clog.NewProdDefaultConfig(),
		Metrics: metrics.Config{ServiceName: "dsync"},
		Redis:   connector.RedisConfig{Addr: "127.0.0.1:6379"},
	}
}

// defaultValues DefaultConfig 的扁平形式。注册后没有配置文件也能加载，
// 同时这些 key 可以被 DSYNC_* 环境变量覆盖（如 DSYNC_REDIS_ADDR）。
func defaultValues() map[string]any {
	cfg := DefaultConfig()
	return map[string]any{
		"log.level":            cfg.Log.Level,
		"log.format":           cfg.Log.Format,
		"log.output":           cfg.Log.Output,
		"metrics.service_name": cfg.Metrics.ServiceName,
		"redis.addr":           cfg.Redis.Addr,
	}
}

// LoadConfig 通过 config 加载器读取配置，缺省项取 DefaultConfig。
// 找不到配置文件时直接使用默认值与环境变量。
func LoadConfig(ctx context.Context, opts ...config.Option) (*Config, error) {
	opts = append([]config.Option{config.WithDefaults(defaultValues())}, opts...)
	loader, err := config.Load(ctx, opts...)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, xerrors.Wrap(err, "app: decode config")
	}
	return cfg, nil
}

// App 组装好的组件
type App struct {
	Logger  clog.Logger
	Meter   metrics.Meter
	Redis   connector.RedisConnector
	Breaker breaker.Breaker
	Store   store.Store
	Locks   *dlock.Factory
	Limiter ratelimit.Limiter

	closers []func(context.Context) error
}

// New 按配置创建全部组件并连接 Redis
func New(ctx context.Context, cfg *Config) (_ *App, err error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	if a.Logger, err = clog.New(&cfg.Log); err != nil {
		return nil, xerrors.Wrap(err, "app: create logger")
	}
	a.closers = append(a.closers, func(context.Context) error {
		a.Logger.Flush()
		return nil
	})

	if a.Meter, err = metrics.New(&cfg.Metrics, metrics.WithLogger(a.Logger)); err != nil {
		return nil, xerrors.Wrap(err, "app: create meter")
	}
	a.closers = append(a.closers, a.Meter.Shutdown)

	var shutdownTrace func(context.Context) error
	if cfg.Trace != nil {
		shutdownTrace, err = trace.Init(cfg.Trace)
	} else {
		shutdownTrace, err = trace.Discard(cfg.Metrics.ServiceName)
	}
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdownTrace)

	if a.Redis, err = connector.NewRedis(&cfg.Redis, connector.WithLogger(a.Logger)); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.Redis.Close() })
	if err = a.Redis.Connect(ctx); err != nil {
		return nil, err
	}

	storeOpts := []store.Option{store.WithLogger(a.Logger), store.WithMeter(a.Meter)}
	if cfg.Breaker != nil {
		if a.Breaker, err = breaker.New(cfg.Breaker, breaker.WithLogger(a.Logger), breaker.WithMeter(a.Meter)); err != nil {
			return nil, err
		}
		storeOpts = append(storeOpts, store.WithBreaker(a.Breaker))
	}
	if a.Store, err = store.NewRedis(a.Redis, storeOpts...); err != nil {
		return nil, err
	}

	if a.Locks, err = dlock.New(a.Store, &cfg.Dlock, dlock.WithLogger(a.Logger), dlock.WithMeter(a.Meter)); err != nil {
		return nil, err
	}
	if a.Limiter, err = ratelimit.NewDistributed(a.Store, a.Locks, &cfg.Ratelimit,
		ratelimit.WithLogger(a.Logger), ratelimit.WithMeter(a.Meter)); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.Limiter.Close() })

	a.Logger.Info("dsync components ready",
		clog.String("redis", cfg.Redis.Addr),
		clog.Bool("breaker", cfg.Breaker != nil),
		clog.Bool("trace_export", cfg.Trace != nil))
	return a, nil
}

// Close 逆序关闭组件，返回合并后的错误
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return xerrors.Combine(errs...)
}
