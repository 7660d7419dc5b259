package dlock

import (
	"strings"

	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/dsync/clog"
	"github.com/ceyewan/dsync/metrics"
	"github.com/ceyewan/dsync/store"
	"github.com/ceyewan/dsync/trace"
	"github.com/ceyewan/dsync/xerrors"
)

// Factory 按统一配置创建锁，由应用启动时构造并显式传递
type Factory struct {
	store    store.Store
	cfg      Config
	logger   clog.Logger
	tracer   oteltrace.Tracer
	registry map[string]DecoratorSpec
	defaults []DecoratorSpec
	inst     *instruments
}

// New 创建锁工厂
//
// 参数:
//   - st: 原子存储，通常是 store.NewRedis
//   - cfg: 默认配置，nil 时全部使用默认值
//   - opts: 可选参数 (Logger, Meter, TracerProvider, 自定义装饰器)
//
// 使用示例:
//
//	st, _ := store.NewRedis(redisConn)
//	locks, _ := dlock.New(st, &dlock.Config{
//	    Prefix:       "myapp:lock:",
//	    LeaseSeconds: 30,
//	}, dlock.WithLogger(logger))
func New(st store.Store, cfg *Config, opts ...Option) (*Factory, error) {
	if st == nil {
		return nil, ErrStoreNil
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := &options{
		logger:         clog.Discard(),
		meter:          metrics.Discard(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}

	registry := map[string]DecoratorSpec{
		Spin.Name:      Spin,
		Reentrant.Name: Reentrant,
	}
	for _, spec := range o.decorators {
		if spec.Name == "" || spec.Wrap == nil {
			return nil, xerrors.Wrap(ErrInvalidConfig, "decorator needs a name and a wrap func")
		}
		registry[spec.Name] = spec
	}

	defaults := make([]DecoratorSpec, 0, len(c.Decorators))
	for _, name := range c.Decorators {
		spec, ok := registry[name]
		if !ok {
			return nil, xerrors.Wrapf(ErrUnknownDecorator, "name: %s", name)
		}
		defaults = append(defaults, spec)
	}

	inst, err := newInstruments(o.meter)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With(clog.String("component", "dlock"))
	logger.Debug("lock factory created",
		clog.String("prefix", c.Prefix),
		clog.Int("lease_seconds", c.LeaseSeconds),
		clog.Any("decorators", c.Decorators))

	return &Factory{
		store:    st,
		cfg:      c,
		logger:   logger,
		tracer:   o.tracerProvider.Tracer(trace.InstrumentationName),
		registry: registry,
		defaults: defaults,
		inst:     inst,
	}, nil
}

// New 为 key 创建一把新锁。锁实例只用于一次加锁，再次加锁请重新创建。
func (f *Factory) New(key string, opts ...LockOption) (Lock, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}
	o := applyLockOptions(opts)
	if err := o.validate(); err != nil {
		return nil, err
	}

	s := o.merge(&f.cfg)
	core := newCoreLock(f.store, f.fullKey(key), s, f.logger)
	l := decorate(core, mergeSpecs(s.extras, f.defaults))
	return f.observe(l), nil
}

// Decorate 对尚未使用的锁应用覆盖项，并用 WithExtraDecorators 指定的装饰器包装。
// 锁已尝试过加锁时返回 ErrLockReused。
func (f *Factory) Decorate(l Lock, opts ...LockOption) (Lock, error) {
	if l == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "lock is nil")
	}
	if status := l.Status(); status != StatusNew {
		return nil, xerrors.Wrapf(ErrLockReused, "key: %s, status: %s", l.Key(), status)
	}
	o := applyLockOptions(opts)
	if err := o.validate(); err != nil {
		return nil, err
	}

	if w, ok := l.(writable); ok {
		if o.leaseSeconds > 0 {
			w.setLeaseSeconds(o.leaseSeconds)
		}
		if o.spinTimes > 0 {
			w.setSpinTimes(o.spinTimes)
		}
		if o.sleepSet {
			w.setSleep(o.sleepMin, o.sleepMax)
		}
		if o.releaseErr != nil {
			w.setReleaseError(o.releaseErr)
		}
	}
	if len(o.extras) == 0 {
		return l, nil
	}
	return decorate(l, mergeSpecs(o.extras)), nil
}

// Decorator 按名称查找已注册的装饰器
func (f *Factory) Decorator(name string) (DecoratorSpec, bool) {
	spec, ok := f.registry[name]
	return spec, ok
}

func (f *Factory) fullKey(key string) string {
	if f.cfg.Prefix == "" || strings.HasPrefix(key, f.cfg.Prefix) {
		return key
	}
	return f.cfg.Prefix + key
}
