package dlock

import "time"

// settings 单个锁实例的最终参数：LockOption > Config > 默认常量
type settings struct {
	leaseSeconds int
	spinTimes    int
	sleepMin     time.Duration
	sleepMax     time.Duration
	releaseErr   error
	extras       []DecoratorSpec
}

// lockOptions 创建锁时的覆盖项，零值表示不覆盖
type lockOptions struct {
	leaseSeconds int
	spinTimes    int
	sleepMin     time.Duration
	sleepMax     time.Duration
	sleepSet     bool
	releaseErr   error
	extras       []DecoratorSpec
}

// LockOption 单个锁的选项函数
type LockOption func(*lockOptions)

// WithLease 设置租约秒数
//
// 使用示例:
//
//	l, _ := locks.New("report", dlock.WithLease(60))
func WithLease(seconds int) LockOption {
	return func(o *lockOptions) {
		o.leaseSeconds = seconds
	}
}

// WithSpinTimes 设置每轮连续尝试次数
func WithSpinTimes(n int) LockOption {
	return func(o *lockOptions) {
		o.spinTimes = n
	}
}

// WithSleep 设置两轮尝试之间的随机休眠范围
func WithSleep(lo, hi time.Duration) LockOption {
	return func(o *lockOptions) {
		o.sleepMin, o.sleepMax, o.sleepSet = lo, hi, true
	}
}

// WithExtraDecorators 在默认装饰器之外追加装饰器
func WithExtraDecorators(specs ...DecoratorSpec) LockOption {
	return func(o *lockOptions) {
		o.extras = append(o.extras, specs...)
	}
}

// WithReleaseError 释放失败时由 Unlock 返回 err，默认只记录 ReleaseFail
func WithReleaseError(err error) LockOption {
	return func(o *lockOptions) {
		o.releaseErr = err
	}
}

func applyLockOptions(opts []LockOption) *lockOptions {
	o := &lockOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *lockOptions) merge(cfg *Config) settings {
	s := settings{
		leaseSeconds: cfg.LeaseSeconds,
		spinTimes:    cfg.SpinTimes,
		sleepMin:     cfg.SleepMin,
		sleepMax:     cfg.SleepMax,
		releaseErr:   o.releaseErr,
		extras:       o.extras,
	}
	if o.leaseSeconds > 0 {
		s.leaseSeconds = o.leaseSeconds
	}
	if o.spinTimes > 0 {
		s.spinTimes = o.spinTimes
	}
	if o.sleepSet {
		s.sleepMin, s.sleepMax = o.sleepMin, o.sleepMax
	}
	return s
}

func (o *lockOptions) validate() error {
	if o.sleepSet && (o.sleepMin < 0 || o.sleepMax < o.sleepMin) {
		return ErrInvalidConfig
	}
	return nil
}
