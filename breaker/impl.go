package breaker

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/dsync/clog"
	"github.com/ceyewan/dsync/metrics"
	"github.com/ceyewan/dsync/xerrors"
)

type circuitBreaker struct {
	cfg      *Config
	logger   clog.Logger
	breakers *xsync.MapOf[string, *gobreaker.CircuitBreaker[any]]

	rejects metrics.Counter
	changes metrics.Counter
}

func newBreaker(cfg *Config, logger clog.Logger, meter metrics.Meter) (*circuitBreaker, error) {
	if meter == nil {
		meter = metrics.Discard()
	}
	cb := &circuitBreaker{
		cfg:      cfg,
		logger:   logger,
		breakers: xsync.NewMapOf[string, *gobreaker.CircuitBreaker[any]](),
	}

	var err error
	if cb.rejects, err = meter.Counter(MetricRejectsTotal, "calls rejected by an open circuit"); err != nil {
		return nil, err
	}
	if cb.changes, err = meter.Counter(MetricStateChanges, "circuit state transitions"); err != nil {
		return nil, err
	}
	return cb, nil
}

func (cb *circuitBreaker) Execute(ctx context.Context, key string, fn func() (any, error)) (any, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}

	result, err := cb.get(key).Execute(fn)
	if xerrors.Is(err, gobreaker.ErrOpenState) || xerrors.Is(err, gobreaker.ErrTooManyRequests) {
		cb.rejects.Inc(ctx, metrics.L(LabelKey, key))
		cb.logger.DebugContext(ctx, "call rejected by circuit breaker", clog.String("key", key))
		return nil, xerrors.Wrapf(ErrOpenState, "key: %s", key)
	}
	return result, err
}

func (cb *circuitBreaker) State(key string) State {
	b, ok := cb.breakers.Load(key)
	if !ok {
		return StateClosed
	}
	return fromGobreaker(b.State())
}

func (cb *circuitBreaker) get(key string) *gobreaker.CircuitBreaker[any] {
	b, _ := cb.breakers.LoadOrCompute(key, func() *gobreaker.CircuitBreaker[any] {
		return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:          key,
			MaxRequests:   cb.cfg.MaxRequests,
			Interval:      cb.cfg.Interval,
			Timeout:       cb.cfg.Timeout,
			ReadyToTrip:   cb.readyToTrip,
			OnStateChange: cb.onStateChange,
		})
	})
	return b
}

func (cb *circuitBreaker) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < cb.cfg.MinimumRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= cb.cfg.FailureRatio
}

func (cb *circuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	cb.changes.Inc(context.Background(),
		metrics.L(LabelKey, name),
		metrics.L(LabelFromState, fromGobreaker(from).String()),
		metrics.L(LabelToState, fromGobreaker(to).String()))
	cb.logger.Warn("circuit breaker state changed",
		clog.String("key", name),
		clog.String("from", fromGobreaker(from).String()),
		clog.String("to", fromGobreaker(to).String()))
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
