package dlock

import (
	"cmp"
	"context"
	"math"
	"slices"
	"time"
)

const (
	// HighestPriority 最外层
	HighestPriority = math.MinInt
	// DefaultPriority 未声明优先级的装饰器
	DefaultPriority = 1000
)

// DecoratorSpec 描述一个装饰器。Priority 越小越靠外层，调用方最先经过。
type DecoratorSpec struct {
	Name     string
	Priority int
	Wrap     func(Lock) Lock
}

var (
	// Spin 自旋退避，负责限时加锁的等待
	Spin = DecoratorSpec{Name: "spin", Priority: HighestPriority, Wrap: NewSpin}
	// Reentrant 同一调用链内可重入，需要 ctx 中带有 WithReentrantScope
	Reentrant = DecoratorSpec{Name: "reentrant", Priority: DefaultPriority, Wrap: NewReentrant}
)

// decorate 按优先级从内到外包装 base
func decorate(base Lock, specs []DecoratorSpec) Lock {
	sorted := slices.Clone(specs)
	slices.SortStableFunc(sorted, func(a, b DecoratorSpec) int {
		return cmp.Compare(a.Priority, b.Priority)
	})

	l := base
	for i := len(sorted) - 1; i >= 0; i-- {
		l = sorted[i].Wrap(l)
	}
	return l
}

// mergeSpecs 按名称去重，先出现的优先
func mergeSpecs(groups ...[]DecoratorSpec) []DecoratorSpec {
	seen := make(map[string]struct{})
	var out []DecoratorSpec
	for _, g := range groups {
		for _, s := range g {
			if _, ok := seen[s.Name]; ok {
				continue
			}
			seen[s.Name] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// Decorator 装饰器基类。自定义装饰器嵌入它，只覆盖需要增强的方法：
//
//	type auditLock struct{ dlock.Decorator }
//
//	func (l *auditLock) Unlock(ctx context.Context) error {
//	    err := l.Decorator.Unlock(ctx)
//	    audit(l.Key(), l.ReleaseStatus())
//	    return err
//	}
//
// 读取沿委托链向内读取，修改一直转发到最内层的 CoreLock。
type Decorator struct {
	delegate Lock
}

// NewDecorator 包装 delegate
func NewDecorator(delegate Lock) Decorator {
	return Decorator{delegate: delegate}
}

// Delegate 返回被包装的锁
func (d *Decorator) Delegate() Lock { return d.delegate }

func (d *Decorator) Key() string { return d.delegate.Key() }

func (d *Decorator) Status() Status { return d.delegate.Status() }

func (d *Decorator) ReleaseStatus() ReleaseStatus { return d.delegate.ReleaseStatus() }

func (d *Decorator) LeaseSeconds() int { return d.delegate.LeaseSeconds() }

func (d *Decorator) SpinTimes() int { return d.delegate.SpinTimes() }

func (d *Decorator) SleepMin() time.Duration { return d.delegate.SleepMin() }

func (d *Decorator) SleepMax() time.Duration { return d.delegate.SleepMax() }

func (d *Decorator) TryLock(ctx context.Context) (bool, error) {
	return d.delegate.TryLock(ctx)
}

func (d *Decorator) TryLockTimeout(ctx context.Context, timeout time.Duration) (bool, error) {
	return d.delegate.TryLockTimeout(ctx, timeout)
}

func (d *Decorator) Unlock(ctx context.Context) error { return d.delegate.Unlock(ctx) }

func (d *Decorator) Interrupted() bool { return d.delegate.Interrupted() }

func (d *Decorator) IsLocked() bool { return d.delegate.IsLocked() }

func (d *Decorator) IsRollbackNeeded() bool { return d.delegate.IsRollbackNeeded() }

func (d *Decorator) IsFinished() bool { return d.delegate.IsFinished() }

func (d *Decorator) compareAndSetStatus(from, to Status) bool {
	if w, ok := d.delegate.(writable); ok {
		return w.compareAndSetStatus(from, to)
	}
	return false
}

func (d *Decorator) setReleaseStatus(s ReleaseStatus) {
	if w, ok := d.delegate.(writable); ok {
		w.setReleaseStatus(s)
	}
}

func (d *Decorator) setLeaseSeconds(n int) {
	if w, ok := d.delegate.(writable); ok {
		w.setLeaseSeconds(n)
	}
}

func (d *Decorator) setSpinTimes(n int) {
	if w, ok := d.delegate.(writable); ok {
		w.setSpinTimes(n)
	}
}

func (d *Decorator) setSleep(lo, hi time.Duration) {
	if w, ok := d.delegate.(writable); ok {
		w.setSleep(lo, hi)
	}
}

func (d *Decorator) setReleaseError(err error) {
	if w, ok := d.delegate.(writable); ok {
		w.setReleaseError(err)
	}
}
