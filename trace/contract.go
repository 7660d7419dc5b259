package trace

// dlock 与 ratelimit 的 span 名称和属性键
const (
	SpanLockAcquire    = "dlock.acquire"
	SpanLockRelease    = "dlock.release"
	SpanPermitsAcquire = "ratelimit.acquire"
	SpanPermitsDrain   = "ratelimit.drain"
)

const (
	AttrLockKey      = "dsync.lock.key"
	AttrLockLease    = "dsync.lock.lease_seconds"
	AttrLockAcquired = "dsync.lock.acquired"
	AttrLockRelease  = "dsync.lock.release_status"

	AttrLimiterKey     = "dsync.ratelimit.key"
	AttrLimiterPermits = "dsync.ratelimit.permits"
	AttrLimiterAllowed = "dsync.ratelimit.allowed"
	AttrLimiterWaitMS  = "dsync.ratelimit.wait_ms"
)

// InstrumentationName 组件创建 Tracer 时使用的名称
const InstrumentationName = "github.com/ceyewan/dsync"
