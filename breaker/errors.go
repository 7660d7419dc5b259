package breaker

import "github.com/ceyewan/dsync/xerrors"

var (
	ErrConfigNil = xerrors.Sentinel(xerrors.ErrInvalidInput, "breaker: config is nil")
	ErrKeyEmpty  = xerrors.Sentinel(xerrors.ErrInvalidInput, "breaker: key is empty")
	// ErrOpenState 熔断打开，调用被拒绝
	ErrOpenState = xerrors.Sentinel(xerrors.ErrUnavailable, "breaker: circuit breaker is open")
)
