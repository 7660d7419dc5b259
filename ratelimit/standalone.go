package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"

	"github.com/ceyewan/dsync/clog"
	"github.com/ceyewan/dsync/metrics"
)

// bucketEntry 包装 rate.Limiter 并记录最后访问时间
type bucketEntry struct {
	limiter  *rate.Limiter
	burst    int
	mu       sync.Mutex
	lastSeen time.Time
}

func (e *bucketEntry) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

// standaloneLimiter 单机限流器，每个 key 一个 rate.Limiter
type standaloneLimiter struct {
	cfg     StandaloneConfig
	logger  clog.Logger
	inst    *instruments
	buckets *xsync.MapOf[string, *bucketEntry]
	stopCh  chan struct{}
	once    sync.Once
}

// NewStandalone 创建单机限流器
//
// 桶容量向上取整为整数个令牌，其余语义与分布式实现一致。
// 空闲的桶会被后台协程定期清理，用完需调用 Close。
func NewStandalone(cfg *StandaloneConfig, opts ...Option) (Limiter, error) {
	c := StandaloneConfig{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}

	inst, err := newInstruments(o.meter, modeStandalone)
	if err != nil {
		return nil, err
	}

	l := &standaloneLimiter{
		cfg:     c,
		logger:  o.logger.With(clog.String("component", "ratelimit")),
		inst:    inst,
		buckets: xsync.NewMapOf[string, *bucketEntry](),
		stopCh:  make(chan struct{}),
	}
	go l.cleanup()

	l.logger.Info("standalone rate limiter created",
		clog.Duration("cleanup_interval", c.CleanupInterval),
		clog.Duration("idle_timeout", c.IdleTimeout))
	return l, nil
}

func (l *standaloneLimiter) TryAcquire(ctx context.Context, key string, limit Limit, permits int) (bool, error) {
	if err := checkRequest(key, limit, permits); err != nil {
		return false, err
	}
	now := time.Now()
	e := l.bucket(key, limit, now)
	e.touch(now)

	allowed := permits <= e.burst && e.limiter.AllowN(now, permits)
	l.logger.Debug("rate limit check",
		clog.String("key", key),
		clog.Bool("allowed", allowed),
		clog.Float64("rate", limit.Rate),
		clog.Int("burst", e.burst),
		clog.Int("permits", permits))
	l.record(ctx, allowed, 0)
	return allowed, nil
}

func (l *standaloneLimiter) TryAcquireTimeout(ctx context.Context, key string, limit Limit, permits int, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		return l.TryAcquire(ctx, key, limit, permits)
	}
	if err := checkRequest(key, limit, permits); err != nil {
		return false, err
	}
	now := time.Now()
	e := l.bucket(key, limit, now)
	e.touch(now)

	r := e.limiter.ReserveN(now, permits)
	if !r.OK() {
		l.record(ctx, false, 0)
		return false, nil
	}
	delay := r.DelayFrom(now)
	if delay > timeout {
		r.CancelAt(now)
		l.record(ctx, false, 0)
		return false, nil
	}
	if err := sleepContext(ctx, delay); err != nil {
		r.Cancel()
		l.inst.errors.Inc(ctx, metrics.L(LabelMode, l.inst.mode), metrics.L(LabelErrorType, errorType(err)))
		return false, err
	}
	l.record(ctx, true, delay)
	return true, nil
}

func (l *standaloneLimiter) TryGetAllPermits(ctx context.Context, key string, limit Limit) (int64, error) {
	if err := checkRequest(key, limit, 1); err != nil {
		return 0, err
	}
	now := time.Now()
	e := l.bucket(key, limit, now)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = now
	n := int(math.Floor(e.limiter.TokensAt(now)))
	if n <= 0 || !e.limiter.AllowN(now, n) {
		return 0, nil
	}
	l.inst.drained.Add(ctx, float64(n), metrics.L(LabelMode, l.inst.mode))
	return int64(n), nil
}

// Close 停止清理协程，可重复调用
func (l *standaloneLimiter) Close() error {
	l.once.Do(func() { close(l.stopCh) })
	return nil
}

// bucket 获取或创建 key 对应的桶，规则变化时视为新桶
func (l *standaloneLimiter) bucket(key string, limit Limit, now time.Time) *bucketEntry {
	cacheKey := fmt.Sprintf("%s:%v:%v", key, limit.Rate, limit.MaxBurstSeconds)
	e, _ := l.buckets.LoadOrCompute(cacheKey, func() *bucketEntry {
		burst := max(int(math.Ceil(limit.MaxPermits())), 1)
		lim := rate.NewLimiter(rate.Limit(limit.Rate), burst)
		// 新建的 rate.Limiter 是满桶，扣掉多余的部分得到初始令牌数
		if extra := burst - int(math.Floor(limit.InitPermits())); extra > 0 {
			lim.ReserveN(now, extra)
		}
		return &bucketEntry{limiter: lim, burst: burst, lastSeen: now}
	})
	return e
}

func (l *standaloneLimiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			count := 0
			l.buckets.Range(func(key string, e *bucketEntry) bool {
				e.mu.Lock()
				idle := now.Sub(e.lastSeen)
				e.mu.Unlock()
				if idle > l.cfg.IdleTimeout {
					l.buckets.Delete(key)
					count++
				}
				return true
			})
			if count > 0 {
				l.logger.Debug("cleaned up idle buckets", clog.Int("count", count))
			}
		case <-l.stopCh:
			return
		}
	}
}

func (l *standaloneLimiter) record(ctx context.Context, ok bool, wait time.Duration) {
	mode := metrics.L(LabelMode, l.inst.mode)
	if ok {
		l.inst.allowed.Inc(ctx, mode)
		l.inst.wait.Record(ctx, wait.Seconds(), mode)
		return
	}
	l.inst.denied.Inc(ctx, mode)
}
