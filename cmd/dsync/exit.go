package main

import (
	"github.com/ceyewan/dsync/dlock"
	"github.com/ceyewan/dsync/ratelimit"
	"github.com/ceyewan/dsync/xerrors"
)

// 退出码 0 成功，1 其他错误
const (
	codeLockBusy    = "LOCK_BUSY"
	codeLeaseLost   = "LEASE_LOST"
	codeRateLimited = "RATE_LIMITED"
)

var exitCodes = map[string]int{
	codeLockBusy:    2,
	codeRateLimited: 3,
	codeLeaseLost:   4,
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := exitCodes[xerrors.GetCode(err)]; ok {
		return code
	}
	return 1
}

// withExitCode 给锁被占用、被限流这类预期结果打上错误码，脚本可按退出码区分"忙"与"失败"。
func withExitCode(err error) error {
	switch {
	case err == nil:
		return nil
	case xerrors.Is(err, dlock.ErrAcquireTimeout):
		return xerrors.WithCode(err, codeLockBusy)
	case xerrors.Is(err, dlock.ErrReleaseFailed):
		return xerrors.WithCode(err, codeLeaseLost)
	case xerrors.Is(err, ratelimit.ErrRateLimitExceeded):
		return xerrors.WithCode(err, codeRateLimited)
	}
	return err
}
