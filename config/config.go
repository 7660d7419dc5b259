package config

import (
	"context"
	"time"

	"github.com/ceyewan/dsync/xerrors"
)

// New 创建配置加载器，需调用 Load 后才可读取配置。
func New(opts ...Option) Loader {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newLoader(o)
}

// Load 创建加载器并立即加载。
func Load(ctx context.Context, opts ...Option) (Loader, error) {
	l := New(opts...)
	if err := l.Load(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// MustLoad 同 Load，失败时 panic，仅用于程序启动阶段。
func MustLoad(opts ...Option) Loader {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return xerrors.Must(Load(ctx, opts...))
}
