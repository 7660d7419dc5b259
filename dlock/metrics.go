package dlock

// Metrics 指标常量定义
const (
	// MetricLockAcquired 锁获取成功次数 (Counter)
	MetricLockAcquired = "dlock_lock_acquired_total"

	// MetricLockFailed 锁获取失败次数，含超时与取消 (Counter)
	MetricLockFailed = "dlock_lock_failed_total"

	// MetricLockReleased 锁释放成功次数 (Counter)
	MetricLockReleased = "dlock_lock_released_total"

	// MetricLockReleaseFailed 锁释放失败次数 (Counter)
	MetricLockReleaseFailed = "dlock_lock_release_failed_total"

	// MetricLockWaitDuration 加锁等待耗时 (Histogram)
	MetricLockWaitDuration = "dlock_lock_wait_duration_seconds"

	// LabelOperation 操作类型标签：try | timeout
	LabelOperation = "operation"

	// LabelStatus 加锁失败时的状态标签
	LabelStatus = "status"
)
