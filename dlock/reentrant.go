package dlock

import (
	"context"
	"sync"
	"time"
)

type scopeKey struct{}

// ReentrantScope 一条逻辑调用链内已持有的锁。
//
// 可重入只在同一个 scope 内生效：同一 scope 中再次获取已持有的 key 直接成功，
// 不访问存储，释放次数与获取次数相等时才真正释放。scope 不能在无关的请求之间共享，
// 否则两个请求会同时认为自己持有锁。
type ReentrantScope struct {
	mu      sync.Mutex
	entries map[string]*scopeEntry
}

type scopeEntry struct {
	holder     *reentrantLock
	acquiredAt time.Time
	depth      int
}

// WithReentrantScope 返回带有新 scope 的 ctx，通常在请求入口调用一次
func WithReentrantScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, &ReentrantScope{entries: make(map[string]*scopeEntry)})
}

// ReentrantScopeFrom 取出 ctx 中的 scope，没有时返回 nil
func ReentrantScopeFrom(ctx context.Context) *ReentrantScope {
	s, _ := ctx.Value(scopeKey{}).(*ReentrantScope)
	return s
}

// Depth 返回 key 在 scope 中的持有次数
func (s *ReentrantScope) Depth(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.depth
	}
	return 0
}

// reentrantLock 同一 scope 内的重入。
// 第一次成功获取的实例记为 holder；之后的获取（同一实例或新实例）只增加计数，
// 新实例的状态单独记录在自身。holds 为本实例尚未释放的获取次数。
type reentrantLock struct {
	Decorator
	now func() time.Time

	mu      sync.Mutex
	scope   *ReentrantScope
	entry   *scopeEntry
	nested  bool
	holds   int
	status  *Status
	release *ReleaseStatus
}

// NewReentrant 包装一个可重入装饰器
func NewReentrant(delegate Lock) Lock {
	return &reentrantLock{Decorator: NewDecorator(delegate), now: time.Now}
}

func (l *reentrantLock) TryLock(ctx context.Context) (bool, error) {
	return l.acquire(ctx, func() (bool, error) {
		return l.delegate.TryLock(ctx)
	})
}

func (l *reentrantLock) TryLockTimeout(ctx context.Context, timeout time.Duration) (bool, error) {
	return l.acquire(ctx, func() (bool, error) {
		return l.delegate.TryLockTimeout(ctx, timeout)
	})
}

func (l *reentrantLock) acquire(ctx context.Context, attempt func() (bool, error)) (bool, error) {
	scope := ReentrantScopeFrom(ctx)
	if scope == nil {
		return attempt()
	}
	if l.join(scope) {
		return true, nil
	}
	if l.cancelled() {
		// 本实例持有的记录已因租约过期失效
		return false, nil
	}

	ok, err := attempt()
	if err != nil || !ok {
		return ok, err
	}

	entry := &scopeEntry{holder: l, acquiredAt: l.now(), depth: 1}
	scope.mu.Lock()
	scope.entries[l.Key()] = entry
	scope.mu.Unlock()

	l.mu.Lock()
	l.scope, l.entry, l.holds = scope, entry, 1
	l.mu.Unlock()
	return true, nil
}

// join 在 scope 已持有该 key 且租约未过期时加入计数。
// 租约过期的记录会被移除，原 holder 标记为取消，调用方随后重新加锁。
func (l *reentrantLock) join(scope *ReentrantScope) bool {
	key := l.Key()
	scope.mu.Lock()
	defer scope.mu.Unlock()

	e, ok := scope.entries[key]
	if !ok {
		return false
	}
	lease := time.Duration(e.holder.LeaseSeconds()) * time.Second
	if l.now().Sub(e.acquiredAt) > lease {
		delete(scope.entries, key)
		e.holder.override(StatusCancel)
		return false
	}

	e.depth++
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holds++
	if e.holder == l {
		return true
	}
	l.scope, l.entry, l.nested = scope, e, true
	locked, fresh := StatusLocked, ReleaseNew
	l.status, l.release = &locked, &fresh
	return true
}

func (l *reentrantLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	scope, entry, nested := l.scope, l.entry, l.nested
	if scope == nil {
		l.mu.Unlock()
		return l.delegate.Unlock(ctx)
	}
	if l.holds == 0 {
		l.mu.Unlock()
		return nil
	}
	l.holds--
	remaining := l.holds
	l.mu.Unlock()

	key := l.Key()
	scope.mu.Lock()
	if scope.entries[key] != entry {
		// 记录已因租约过期被替换
		scope.mu.Unlock()
		if remaining > 0 {
			return nil
		}
		if nested {
			l.setRelease(ReleaseSuccess)
			return nil
		}
		return l.delegate.Unlock(ctx)
	}
	entry.depth--
	if entry.depth > 0 {
		scope.mu.Unlock()
		if remaining == 0 {
			l.setRelease(ReleaseSuccess)
		}
		return nil
	}
	delete(scope.entries, key)
	scope.mu.Unlock()

	holder := entry.holder
	err := holder.delegate.Unlock(ctx)
	if holder != l {
		l.setRelease(holder.delegate.ReleaseStatus())
	}
	return err
}

func (l *reentrantLock) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status != nil {
		return *l.status
	}
	return l.delegate.Status()
}

func (l *reentrantLock) ReleaseStatus() ReleaseStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.release != nil {
		return *l.release
	}
	return l.delegate.ReleaseStatus()
}

func (l *reentrantLock) Interrupted() bool {
	l.mu.Lock()
	overridden := l.status != nil
	l.mu.Unlock()
	if overridden {
		return false
	}
	return l.delegate.Interrupted()
}

func (l *reentrantLock) IsLocked() bool {
	return isLocked(l.Status(), l.ReleaseStatus())
}

func (l *reentrantLock) IsRollbackNeeded() bool {
	return isRollbackNeeded(l.Status(), l.ReleaseStatus())
}

func (l *reentrantLock) IsFinished() bool {
	return isFinished(l.ReleaseStatus())
}

func (l *reentrantLock) cancelled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status != nil && *l.status == StatusCancel
}

func (l *reentrantLock) override(s Status) {
	l.mu.Lock()
	l.status = &s
	l.mu.Unlock()
}

func (l *reentrantLock) setRelease(s ReleaseStatus) {
	l.mu.Lock()
	l.release = &s
	l.mu.Unlock()
}
