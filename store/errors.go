package store

import "github.com/ceyewan/dsync/xerrors"

var (
	ErrKeyEmpty   = xerrors.Sentinel(xerrors.ErrInvalidInput, "store: key is empty")
	ErrInvalidTTL = xerrors.Sentinel(xerrors.ErrInvalidInput, "store: ttl must be positive")
	ErrNilClient  = xerrors.Sentinel(xerrors.ErrInvalidInput, "store: redis client is nil")

	// ErrProtocol 存储返回了无法解析的应答
	ErrProtocol = xerrors.Sentinel(xerrors.ErrUnavailable, "store: malformed reply")
	// ErrUnavailable 存储不可达，由 Get 与 ServerTimeMillis 返回
	ErrUnavailable = xerrors.Sentinel(xerrors.ErrUnavailable, "store: unavailable")
)
