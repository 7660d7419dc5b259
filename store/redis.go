package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/dsync/breaker"
	"github.com/ceyewan/dsync/clog"
	"github.com/ceyewan/dsync/connector"
	"github.com/ceyewan/dsync/metrics"
	"github.com/ceyewan/dsync/xerrors"
)

// compareAndDeleteScript 仅当值匹配时删除，避免误删他人持有的锁
var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

const breakerKey = "redis"

type redisStore struct {
	client  redis.UniversalClient
	logger  clog.Logger
	breaker breaker.Breaker
	errors  metrics.Counter
}

// NewRedis 基于 Redis 连接器创建存储，连接器的生命周期由调用方管理
func NewRedis(conn connector.RedisConnector, opts ...Option) (Store, error) {
	if conn == nil {
		return nil, ErrNilClient
	}
	return NewRedisClient(conn.GetClient(), opts...)
}

// NewRedisClient 直接使用已有的 go-redis 客户端创建存储
func NewRedisClient(client redis.UniversalClient, opts ...Option) (Store, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	o := applyOptions(opts)

	errs, err := o.meter.Counter(MetricErrorsTotal, "store errors degraded to a negative result")
	if err != nil {
		return nil, err
	}
	return &redisStore{
		client:  client,
		logger:  o.logger.With(clog.String("backend", "redis")),
		breaker: o.breaker,
		errors:  errs,
	}, nil
}

func (s *redisStore) SetIfAbsent(ctx context.Context, key, value string, ttlSeconds int) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	if err := checkTTL(ttlSeconds); err != nil {
		return false, err
	}

	res, err := s.call(ctx, func() (any, error) {
		return s.client.SetNX(ctx, key, value, time.Duration(ttlSeconds)*time.Second).Result()
	})
	if err != nil {
		s.degrade(ctx, opSetIfAbsent, key, err)
		return false, nil
	}
	return res.(bool), nil
}

func (s *redisStore) Set(ctx context.Context, key, value string) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}

	if _, err := s.call(ctx, func() (any, error) {
		return nil, s.client.Set(ctx, key, value, 0).Err()
	}); err != nil {
		s.degrade(ctx, opSet, key, err)
		return false, nil
	}
	return true, nil
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}

	res, err := s.call(ctx, func() (any, error) {
		val, err := s.client.Get(ctx, key).Result()
		if xerrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return val, err
	})
	if err != nil {
		s.degrade(ctx, opGet, key, err)
		return "", false, xerrors.Wrapf(ErrUnavailable, "get %s: %v", key, err)
	}
	if res == nil {
		return "", false, nil
	}
	return res.(string), true, nil
}

func (s *redisStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}

	res, err := s.call(ctx, func() (any, error) {
		return s.client.Del(ctx, key).Result()
	})
	if err != nil {
		s.degrade(ctx, opDelete, key, err)
		return false, nil
	}
	return res.(int64) > 0, nil
}

func (s *redisStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}

	res, err := s.call(ctx, func() (any, error) {
		return compareAndDeleteScript.Run(ctx, s.client, []string{key}, expected).Result()
	})
	if err != nil {
		s.degrade(ctx, opCompareAndDelete, key, err)
		return false, nil
	}
	n, ok := res.(int64)
	if !ok {
		return false, xerrors.Wrapf(ErrProtocol, "compare-and-delete %s: unexpected reply %T", key, res)
	}
	return n > 0, nil
}

func (s *redisStore) ServerTimeMillis(ctx context.Context) (int64, error) {
	res, err := s.call(ctx, func() (any, error) {
		return s.client.Do(ctx, "TIME").Result()
	})
	if err != nil {
		s.degrade(ctx, opServerTime, "", err)
		return 0, xerrors.Wrap(ErrUnavailable, err.Error())
	}
	return parseTime(res)
}

// call 在配置了熔断器时经由熔断器执行
func (s *redisStore) call(ctx context.Context, fn func() (any, error)) (any, error) {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Execute(ctx, breakerKey, fn)
}

func (s *redisStore) degrade(ctx context.Context, op, key string, err error) {
	s.errors.Inc(ctx, metrics.L(LabelOp, op), metrics.L(LabelBackend, "redis"))
	s.logger.WarnContext(ctx, "store operation failed",
		clog.String("op", op),
		clog.String("key", key),
		clog.Error(err))
}

// parseTime 解析 TIME 的应答：[秒, 微秒]
func parseTime(reply any) (int64, error) {
	parts, ok := reply.([]any)
	if !ok || len(parts) != 2 {
		return 0, xerrors.Wrapf(ErrProtocol, "TIME: unexpected reply %v", reply)
	}

	var nums [2]int64
	for i, p := range parts {
		var (
			n   int64
			err error
		)
		switch v := p.(type) {
		case string:
			n, err = strconv.ParseInt(v, 10, 64)
		case int64:
			n = v
		default:
			err = xerrors.New("not a number")
		}
		if err != nil || n < 0 {
			return 0, xerrors.Wrapf(ErrProtocol, "TIME: bad element %v", p)
		}
		nums[i] = n
	}
	return nums[0]*1000 + nums[1]/1000, nil
}
