package config

import "github.com/ceyewan/dsync/xerrors"

var (
	// ErrValidationFailed 配置校验失败
	ErrValidationFailed = xerrors.Sentinel(xerrors.ErrInvalidInput, "config: validation failed")
	// ErrNotLoaded 在 Load 之前调用了 Watch
	ErrNotLoaded = xerrors.Sentinel(xerrors.ErrInvalidInput, "config: not loaded")
)

// IsInvalidInput 判断错误是否属于配置无效
func IsInvalidInput(err error) bool {
	return xerrors.Is(err, xerrors.ErrInvalidInput)
}
