package connector

import "github.com/ceyewan/dsync/xerrors"

var (
	// ErrConfig 配置无效
	ErrConfig = xerrors.Sentinel(xerrors.ErrInvalidInput, "connector: invalid config")
	// ErrConnection 连接或探活失败
	ErrConnection = xerrors.Sentinel(xerrors.ErrUnavailable, "connector: connection failed")
	// ErrClientNil 客户端未初始化或已关闭
	ErrClientNil = xerrors.Sentinel(xerrors.ErrUnavailable, "connector: client is nil")
)
