package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"github.com/ceyewan/dsync/clog"
	"github.com/ceyewan/dsync/xerrors"
)

type redisConnector struct {
	cfg     *RedisConfig
	logger  clog.Logger
	healthy atomic.Bool

	mu     sync.RWMutex
	client *redis.Client
}

// NewRedis 创建 Redis 连接器。客户端立即创建，Connect 时才探活。
func NewRedis(cfg *RedisConfig, opts ...Option) (RedisConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "redis config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})

	if cfg.EnableTracing {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return nil, xerrors.Wrap(err, "redis connector: instrument tracing")
		}
	}
	if cfg.EnableMetrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			_ = client.Close()
			return nil, xerrors.Wrap(err, "redis connector: instrument metrics")
		}
	}

	return &redisConnector{
		cfg:    cfg,
		client: client,
		logger: o.logger.With(clog.String("connector", "redis"), clog.String("name", cfg.Name)),
	}, nil
}

func (c *redisConnector) Connect(ctx context.Context) error {
	if c.healthy.Load() {
		return nil
	}
	client := c.GetClient()
	if client == nil {
		return ErrClientNil
	}

	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.ErrorContext(ctx, "connect to redis failed", clog.String("addr", c.cfg.Addr), clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "redis[%s] %s: %v", c.cfg.Name, c.cfg.Addr, err)
	}
	c.healthy.Store(true)
	c.logger.InfoContext(ctx, "connected to redis", clog.String("addr", c.cfg.Addr))
	return nil
}

func (c *redisConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	if err != nil {
		c.logger.Error("close redis connection failed", clog.Error(err))
		return err
	}
	c.logger.Info("redis connection closed")
	return nil
}

func (c *redisConnector) HealthCheck(ctx context.Context) error {
	client := c.GetClient()
	if client == nil {
		return ErrClientNil
	}
	if err := client.Ping(ctx).Err(); err != nil {
		c.healthy.Store(false)
		c.logger.WarnContext(ctx, "redis health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "redis[%s] health check: %v", c.cfg.Name, err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *redisConnector) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *redisConnector) Name() string {
	return c.cfg.Name
}

func (c *redisConnector) GetClient() *redis.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}
