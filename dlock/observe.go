package dlock

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/dsync/metrics"
	"github.com/ceyewan/dsync/trace"
)

type instruments struct {
	acquired      metrics.Counter
	failed        metrics.Counter
	released      metrics.Counter
	releaseFailed metrics.Counter
	wait          metrics.Histogram
}

func newInstruments(m metrics.Meter) (*instruments, error) {
	var (
		inst instruments
		err  error
	)
	if inst.acquired, err = m.Counter(MetricLockAcquired, "locks acquired"); err != nil {
		return nil, err
	}
	if inst.failed, err = m.Counter(MetricLockFailed, "lock attempts that did not acquire"); err != nil {
		return nil, err
	}
	if inst.released, err = m.Counter(MetricLockReleased, "locks released"); err != nil {
		return nil, err
	}
	if inst.releaseFailed, err = m.Counter(MetricLockReleaseFailed, "lock releases that failed"); err != nil {
		return nil, err
	}
	if inst.wait, err = m.Histogram(MetricLockWaitDuration, "time spent acquiring a lock",
		metrics.WithUnit("s"),
		metrics.WithBuckets(0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10)); err != nil {
		return nil, err
	}
	return &inst, nil
}

// observedLock 最外层，记录 span 与指标，不改变锁的行为
type observedLock struct {
	Decorator
	inst   *instruments
	tracer oteltrace.Tracer
}

func (f *Factory) observe(l Lock) Lock {
	return &observedLock{Decorator: NewDecorator(l), inst: f.inst, tracer: f.tracer}
}

func (l *observedLock) TryLock(ctx context.Context) (bool, error) {
	return l.acquire(ctx, "try", func(ctx context.Context) (bool, error) {
		return l.delegate.TryLock(ctx)
	})
}

func (l *observedLock) TryLockTimeout(ctx context.Context, timeout time.Duration) (bool, error) {
	return l.acquire(ctx, "timeout", func(ctx context.Context) (bool, error) {
		return l.delegate.TryLockTimeout(ctx, timeout)
	})
}

func (l *observedLock) acquire(ctx context.Context, op string, fn func(context.Context) (bool, error)) (bool, error) {
	ctx, span := l.tracer.Start(ctx, trace.SpanLockAcquire, oteltrace.WithAttributes(
		attribute.String(trace.AttrLockKey, l.Key()),
		attribute.Int(trace.AttrLockLease, l.LeaseSeconds()),
	))
	defer span.End()

	start := time.Now()
	ok, err := fn(ctx)
	l.inst.wait.Record(ctx, time.Since(start).Seconds(), metrics.L(LabelOperation, op))

	span.SetAttributes(attribute.Bool(trace.AttrLockAcquired, ok))
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.inst.failed.Inc(ctx, metrics.L(LabelOperation, op), metrics.L(LabelStatus, "error"))
	case ok:
		l.inst.acquired.Inc(ctx, metrics.L(LabelOperation, op))
	default:
		l.inst.failed.Inc(ctx, metrics.L(LabelOperation, op), metrics.L(LabelStatus, l.Status().String()))
	}
	return ok, err
}

func (l *observedLock) Unlock(ctx context.Context) error {
	ctx, span := l.tracer.Start(ctx, trace.SpanLockRelease, oteltrace.WithAttributes(
		attribute.String(trace.AttrLockKey, l.Key()),
	))
	defer span.End()

	before := l.ReleaseStatus()
	err := l.delegate.Unlock(ctx)
	release := l.ReleaseStatus()
	span.SetAttributes(attribute.String(trace.AttrLockRelease, release.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if release == before {
		return err
	}
	switch release {
	case ReleaseSuccess:
		l.inst.released.Inc(ctx)
	case ReleaseFail:
		l.inst.releaseFailed.Inc(ctx)
	}
	return err
}
