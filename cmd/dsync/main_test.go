package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dsync/dlock"
	"github.com/ceyewan/dsync/ratelimit"
	"github.com/ceyewan/dsync/xerrors"
)

func run(t *testing.T, mr *miniredis.Miniredis, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config-path", t.TempDir(), "--redis", mr.Addr(), "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "dsync v"+Version+"\n", out.String())
}

func TestLockTry(t *testing.T) {
	mr := miniredis.RunT(t)

	t.Run("空闲时加锁并释放", func(t *testing.T) {
		out, err := run(t, mr, "lock", "try", "report")
		require.NoError(t, err)
		assert.Contains(t, out, "acquired report")
		assert.Contains(t, out, "released report (status: success)")
		assert.False(t, mr.Exists("report"))
	})

	t.Run("被占用时报错", func(t *testing.T) {
		require.NoError(t, mr.Set("busy", "someone-else"))
		out, err := run(t, mr, "lock", "try", "busy")
		assert.ErrorIs(t, err, dlock.ErrAcquireTimeout)
		assert.Equal(t, 2, exitCode(err))
		assert.Contains(t, out, "busy busy")
	})
}

func TestLockRun(t *testing.T) {
	mr := miniredis.RunT(t)

	t.Run("持锁执行命令", func(t *testing.T) {
		out, err := run(t, mr, "lock", "run", "job", "--", "echo", "hello")
		require.NoError(t, err)
		assert.Contains(t, out, "hello")
		assert.False(t, mr.Exists("job"))
	})

	t.Run("拿不到锁时不执行", func(t *testing.T) {
		require.NoError(t, mr.Set("held", "someone-else"))
		out, err := run(t, mr, "lock", "run", "held", "--", "echo", "should-not-run")
		assert.ErrorIs(t, err, dlock.ErrAcquireTimeout)
		assert.Equal(t, 2, exitCode(err))
		assert.NotContains(t, out, "should-not-run")
	})
}

func TestLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	// 固定存储时钟，令牌不会在两次命令之间补充
	mr.SetTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	out, err := run(t, mr, "limit", "acquire", "api", "--rate", "10", "--permits", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "granted 5 permits on api")

	out, err = run(t, mr, "limit", "acquire", "api", "--rate", "10", "--permits", "8")
	assert.ErrorIs(t, err, ratelimit.ErrRateLimitExceeded)
	assert.Equal(t, 3, exitCode(err))
	assert.Contains(t, out, "denied 8 permits on api")

	out, err = run(t, mr, "limit", "drain", "api", "--rate", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "drained 5 permits from api")

	_, err = run(t, mr, "limit", "acquire", "api", "--rate", "0")
	assert.ErrorIs(t, err, ratelimit.ErrInvalidLimit)
	assert.Equal(t, 1, exitCode(err))
}

func TestExitCode(t *testing.T) {
	t.Run("成功为 0", func(t *testing.T) {
		assert.Equal(t, 0, exitCode(nil))
	})

	t.Run("预期结果映射到各自的退出码", func(t *testing.T) {
		lost := withExitCode(xerrors.Wrapf(dlock.ErrReleaseFailed, "key: %s", "job"))
		assert.Equal(t, 4, exitCode(lost))
		assert.ErrorIs(t, lost, dlock.ErrReleaseFailed)
		assert.Equal(t, codeLeaseLost, xerrors.GetCode(lost))
	})

	t.Run("其他错误为 1", func(t *testing.T) {
		err := withExitCode(xerrors.New("boom"))
		assert.Empty(t, xerrors.GetCode(err))
		assert.Equal(t, 1, exitCode(err))
	})
}
