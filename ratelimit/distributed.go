package ratelimit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/dsync/clog"
	"github.com/ceyewan/dsync/dlock"
	"github.com/ceyewan/dsync/metrics"
	"github.com/ceyewan/dsync/store"
	"github.com/ceyewan/dsync/trace"
	"github.com/ceyewan/dsync/xerrors"
)

// distributedLimiter 桶状态存放在 store 中，读改写由同名的分布式锁串行化
type distributedLimiter struct {
	store  store.Store
	locks  *dlock.Factory
	prefix string
	logger clog.Logger
	tracer oteltrace.Tracer
	inst   *instruments
}

// NewDistributed 创建分布式限流器
//
// 参数:
//   - st: 保存桶状态的存储，同时提供统一的时钟
//   - locks: 锁工厂，限流器为每个 key 创建同名锁保护桶状态
//   - cfg: 配置，nil 时使用默认值
//
// 使用示例:
//
//	limiter, _ := ratelimit.NewDistributed(st, locks, nil, ratelimit.WithLogger(logger))
//	defer limiter.Close()
func NewDistributed(st store.Store, locks *dlock.Factory, cfg *Config, opts ...Option) (Limiter, error) {
	if st == nil {
		return nil, ErrStoreNil
	}
	if locks == nil {
		return nil, ErrLocksNil
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	o := &options{
		logger:         clog.Discard(),
		meter:          metrics.Discard(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}

	inst, err := newInstruments(o.meter, modeDistributed)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With(clog.String("component", "ratelimit"))
	logger.Info("distributed rate limiter created", clog.String("state_prefix", c.StatePrefix))

	return &distributedLimiter{
		store:  st,
		locks:  locks,
		prefix: c.StatePrefix,
		logger: logger,
		tracer: o.tracerProvider.Tracer(trace.InstrumentationName),
		inst:   inst,
	}, nil
}

func (d *distributedLimiter) TryAcquire(ctx context.Context, key string, limit Limit, permits int) (bool, error) {
	return d.TryAcquireTimeout(ctx, key, limit, permits, 0)
}

func (d *distributedLimiter) TryAcquireTimeout(ctx context.Context, key string, limit Limit, permits int, timeout time.Duration) (bool, error) {
	if err := checkRequest(key, limit, permits); err != nil {
		return false, err
	}
	timeout = max(timeout, 0)

	ctx, span := d.tracer.Start(ctx, trace.SpanPermitsAcquire, oteltrace.WithAttributes(
		attribute.String(trace.AttrLimiterKey, key),
		attribute.Int(trace.AttrLimiterPermits, permits),
	))
	defer span.End()

	ok, waitMS, err := d.acquire(ctx, key, limit, permits, timeout)
	span.SetAttributes(
		attribute.Bool(trace.AttrLimiterAllowed, ok),
		attribute.Int64(trace.AttrLimiterWaitMS, waitMS),
	)
	d.record(ctx, ok, waitMS, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return ok, err
}

// acquire 返回是否拿到令牌，以及需要（或已经）等待的毫秒数
func (d *distributedLimiter) acquire(ctx context.Context, key string, limit Limit, permits int, timeout time.Duration) (bool, int64, error) {
	start := time.Now()
	lock, ok, err := d.lock(ctx, key, timeout)
	if err != nil || !ok {
		return false, 0, err
	}
	defer d.unlock(ctx, lock)

	now, s, ok, err := d.load(ctx, key, limit)
	if err != nil || !ok {
		return false, 0, err
	}

	waitMS := s.WaitMillis(permits)
	if waitMS > 0 {
		if timeout == 0 {
			d.logger.Debug("not enough permits",
				clog.String("key", key),
				clog.Float64("stored", s.Stored),
				clog.Int("permits", permits))
			return false, waitMS, nil
		}
		wait := time.Duration(waitMS) * time.Millisecond
		if used := time.Since(start); wait+used > timeout {
			d.logger.Debug("refill wait exceeds timeout",
				clog.String("key", key),
				clog.Duration("wait", wait),
				clog.Duration("lock_used", used),
				clog.Duration("timeout", timeout))
			return false, waitMS, nil
		}
		if err := sleepContext(ctx, wait); err != nil {
			return false, waitMS, err
		}
	}

	s.Take(permits, now+waitMS)
	if !d.save(ctx, key, s) {
		return false, waitMS, nil
	}
	return true, waitMS, nil
}

func (d *distributedLimiter) TryGetAllPermits(ctx context.Context, key string, limit Limit) (int64, error) {
	if err := checkRequest(key, limit, 1); err != nil {
		return 0, err
	}

	ctx, span := d.tracer.Start(ctx, trace.SpanPermitsDrain, oteltrace.WithAttributes(
		attribute.String(trace.AttrLimiterKey, key),
	))
	defer span.End()

	lock, ok, err := d.lock(ctx, key, 0)
	if err != nil || !ok {
		return 0, err
	}
	defer d.unlock(ctx, lock)

	_, s, ok, err := d.load(ctx, key, limit)
	if err != nil || !ok {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return 0, err
	}

	n := s.Drain()
	if n > 0 && !d.save(ctx, key, s) {
		return 0, nil
	}
	span.SetAttributes(attribute.Int64(trace.AttrLimiterPermits, n))
	d.inst.drained.Add(ctx, float64(n), metrics.L(LabelMode, d.inst.mode))
	return n, nil
}

func (d *distributedLimiter) Close() error {
	return nil
}

// lock 获取保护桶状态的锁。timeout 为 0 时只尝试一次。
func (d *distributedLimiter) lock(ctx context.Context, key string, timeout time.Duration) (dlock.Lock, bool, error) {
	lock, err := d.locks.New(key, dlock.WithLease(lockLeaseSeconds(timeout)))
	if err != nil {
		return nil, false, err
	}
	var ok bool
	if timeout > 0 {
		ok, err = lock.TryLockTimeout(ctx, timeout)
	} else {
		ok, err = lock.TryLock(ctx)
	}
	if err != nil {
		return nil, false, err
	}
	if !ok {
		d.logger.Debug("bucket is busy", clog.String("key", key), clog.Duration("timeout", timeout))
	}
	return lock, ok, nil
}

func (d *distributedLimiter) unlock(ctx context.Context, lock dlock.Lock) {
	if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
		d.logger.Warn("failed to release bucket lock", clog.String("key", lock.Key()), clog.Error(err))
		return
	}
	if lock.ReleaseStatus() == dlock.ReleaseFail {
		d.logger.Warn("bucket lock expired before release", clog.String("key", lock.Key()))
	}
}

// load 读取存储时间与桶状态并补充令牌。存储不可用时返回 ok=false，此时不得写回。
func (d *distributedLimiter) load(ctx context.Context, key string, limit Limit) (int64, *State, bool, error) {
	now, err := d.store.ServerTimeMillis(ctx)
	if err != nil {
		d.logger.Warn("failed to read store time", clog.String("key", key), clog.Error(err))
		return 0, nil, false, nil
	}

	raw, found, err := d.store.Get(ctx, d.stateKey(key))
	if err != nil {
		// 读失败不能当作新桶，否则会用初始令牌覆盖已消耗的状态
		if xerrors.Is(err, store.ErrUnavailable) {
			d.logger.Warn("failed to read bucket state", clog.String("key", key), clog.Error(err))
			return 0, nil, false, nil
		}
		return 0, nil, false, err
	}

	var s *State
	if !found {
		s = NewState(limit, now)
		d.logger.Debug("bucket initialized", clog.String("key", key), clog.String("state", s.Encode()))
	} else {
		if s, err = ParseState(raw); err != nil {
			return 0, nil, false, xerrors.Wrapf(err, "key: %s", key)
		}
		oldRate, oldMax := s.Rate, s.Max
		if s.Reconfigure(limit) {
			d.logger.Warn("bucket config overwritten",
				clog.String("key", key),
				clog.Float64("old_rate", oldRate),
				clog.Float64("new_rate", s.Rate),
				clog.Float64("old_max", oldMax),
				clog.Float64("new_max", s.Max))
		}
	}
	s.Resync(now)
	return now, s, true, nil
}

func (d *distributedLimiter) save(ctx context.Context, key string, s *State) bool {
	ok, err := d.store.Set(ctx, d.stateKey(key), s.Encode())
	if err != nil || !ok {
		d.logger.Warn("failed to persist bucket state", clog.String("key", key), clog.Error(err))
		return false
	}
	return true
}

func (d *distributedLimiter) stateKey(key string) string {
	return d.prefix + key
}

func (d *distributedLimiter) record(ctx context.Context, ok bool, waitMS int64, err error) {
	mode := metrics.L(LabelMode, d.inst.mode)
	switch {
	case err != nil:
		d.inst.errors.Inc(ctx, mode, metrics.L(LabelErrorType, errorType(err)))
	case ok:
		d.inst.allowed.Inc(ctx, mode)
		d.inst.wait.Record(ctx, float64(waitMS)/1000, mode)
	default:
		d.inst.denied.Inc(ctx, mode)
	}
}

func errorType(err error) string {
	switch {
	case xerrors.Is(err, context.Canceled), xerrors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case xerrors.Is(err, ErrMalformedState):
		return "malformed_state"
	}
	if kind := xerrors.KindOf(err); kind != nil {
		return kind.Error()
	}
	return "internal"
}
