package dlock

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ceyewan/dsync/xerrors"
)

// FaultPolicy 没拿到锁时的处理策略
type FaultPolicy int

const (
	// FaultAuto 设置了 Fallback 时同 FaultReplace，否则同 FaultThrow
	FaultAuto FaultPolicy = iota
	// FaultReplace 执行 Fallback
	FaultReplace
	// FaultDoNothing 返回零值，不报错
	FaultDoNothing
	// FaultThrow 返回 FaultError
	FaultThrow
	// FaultContinue 不加锁继续执行
	FaultContinue
)

func (p FaultPolicy) String() string {
	switch p {
	case FaultAuto:
		return "auto"
	case FaultReplace:
		return "replace"
	case FaultDoNothing:
		return "do_nothing"
	case FaultThrow:
		return "throw"
	case FaultContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// GuardConfig 声明式加锁配置
type GuardConfig[T any] struct {
	// KeyTemplate 锁 key 模板，#{name} 替换为参数 name 的值，如 "order:#{orderID}"
	KeyTemplate string

	// LeaseSeconds 租约秒数，0 使用工厂配置
	LeaseSeconds int

	// Wait 最长等待时间，<= 0 时只尝试一次
	Wait time.Duration

	Policy   FaultPolicy
	Fallback func(ctx context.Context) (T, error)
	Rollback func(ctx context.Context, result T) (T, error)

	// FaultError FaultThrow 时返回的错误，默认 ErrAcquireTimeout
	FaultError error

	// ReleaseError 释放失败且未设置 Rollback 时返回的错误，nil 表示忽略
	ReleaseError error
}

// Guard 把一段逻辑包装成 "按参数加锁后执行"
type Guard[T any] struct {
	locks *Factory
	cfg   GuardConfig[T]
}

// NewGuard 创建 Guard
func NewGuard[T any](locks *Factory, cfg GuardConfig[T]) (*Guard[T], error) {
	if locks == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "guard: factory is nil")
	}
	if cfg.KeyTemplate == "" {
		return nil, xerrors.Wrap(ErrKeyEmpty, "guard: key template is empty")
	}
	if cfg.Policy == FaultReplace && cfg.Fallback == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "guard: replace policy needs a fallback")
	}
	if cfg.FaultError == nil {
		cfg.FaultError = ErrAcquireTimeout
	}
	return &Guard[T]{locks: locks, cfg: cfg}, nil
}

// Run 用 args 渲染 key，加锁后执行 fn
func (g *Guard[T]) Run(ctx context.Context, args map[string]any, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	key := RenderKey(g.cfg.KeyTemplate, args)
	if key == "" {
		return zero, ErrKeyEmpty
	}

	var opts []LockOption
	if g.cfg.LeaseSeconds > 0 {
		opts = append(opts, WithLease(g.cfg.LeaseSeconds))
	}
	if g.cfg.ReleaseError != nil {
		opts = append(opts, WithReleaseError(g.cfg.ReleaseError))
	}
	l, err := g.locks.New(key, opts...)
	if err != nil {
		return zero, err
	}

	return Execute(ctx, l, Execution[T]{
		Action:   fn,
		Fallback: g.fault(key, fn),
		Rollback: g.cfg.Rollback,
		Wait:     g.cfg.Wait,
	})
}

func (g *Guard[T]) fault(key string, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	policy := g.cfg.Policy
	if policy == FaultAuto {
		policy = FaultThrow
		if g.cfg.Fallback != nil {
			policy = FaultReplace
		}
	}

	switch policy {
	case FaultReplace:
		return g.cfg.Fallback
	case FaultDoNothing:
		return func(context.Context) (T, error) {
			var zero T
			return zero, nil
		}
	case FaultContinue:
		return fn
	default:
		return func(context.Context) (T, error) {
			var zero T
			return zero, xerrors.Wrapf(g.cfg.FaultError, "key: %s", key)
		}
	}
}

var placeholder = regexp.MustCompile(`#\{(\w+)\}`)

// RenderKey 用 args 替换模板中的 #{name}，缺失或 nil 的参数替换为空串
func RenderKey(tmpl string, args map[string]any) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		v, ok := args[m[2:len(m)-1]]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	})
}
