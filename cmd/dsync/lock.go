package main

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/ceyewan/dsync/clog"
	"github.com/ceyewan/dsync/dlock"
	"github.com/ceyewan/dsync/xerrors"
)

type lockFlags struct {
	lease int
	wait  time.Duration
}

func (f *lockFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.lease, "lease", 0, "lease in seconds, 0 uses the configured default")
	cmd.Flags().DurationVar(&f.wait, "wait", 0, "how long to wait for the lock, 0 tries once")
}

func (f *lockFlags) newLock(cmd *cobra.Command, key string) (dlock.Lock, error) {
	var opts []dlock.LockOption
	if f.lease > 0 {
		opts = append(opts, dlock.WithLease(f.lease))
	}
	return appFrom(cmd).Locks.New(key, opts...)
}

func newLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Perform distributed lock operations",
	}
	cmd.AddCommand(newLockTryCmd(), newLockRunCmd())
	return cmd
}

func newLockTryCmd() *cobra.Command {
	var (
		flags lockFlags
		hold  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "try [key]",
		Short: "Try to acquire a lock, optionally hold it, then release it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l, err := flags.newLock(cmd, args[0])
			if err != nil {
				return err
			}

			var ok bool
			if flags.wait > 0 {
				ok, err = l.TryLockTimeout(ctx, flags.wait)
			} else {
				ok, err = l.TryLock(ctx)
			}
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "busy %s (status: %s)\n", l.Key(), l.Status())
				return withExitCode(xerrors.Wrapf(dlock.ErrAcquireTimeout, "key: %s", l.Key()))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "acquired %s (lease: %ds)\n", l.Key(), l.LeaseSeconds())

			if hold > 0 {
				select {
				case <-time.After(hold):
				case <-ctx.Done():
				}
			}
			err = l.Unlock(context.WithoutCancel(ctx))
			fmt.Fprintf(cmd.OutOrStdout(), "released %s (status: %s)\n", l.Key(), l.ReleaseStatus())
			return err
		},
	}
	flags.bind(cmd)
	cmd.Flags().DurationVar(&hold, "hold", 0, "how long to hold the lock before releasing it")
	return cmd
}

func newLockRunCmd() *cobra.Command {
	var flags lockFlags
	cmd := &cobra.Command{
		Use:   "run [key] -- [command...]",
		Short: "Run a command while holding a lock",
		Long: `Run a command while holding a lock. The command is not started when the
lock cannot be acquired within --wait. A release failure means the lease
expired while the command was running and is reported as an error.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			l, err := flags.newLock(cmd, args[0])
			if err != nil {
				return err
			}
			logger := a.Logger.With(clog.String("key", l.Key()))

			_, err = dlock.Execute(cmd.Context(), l, dlock.Execution[struct{}]{
				Action: func(ctx context.Context) (struct{}, error) {
					c := exec.CommandContext(ctx, args[1], args[2:]...)
					c.Stdin = cmd.InOrStdin()
					c.Stdout = cmd.OutOrStdout()
					c.Stderr = cmd.ErrOrStderr()
					logger.Info("running command under lock", clog.Any("command", args[1:]))
					return struct{}{}, c.Run()
				},
				Rollback: func(ctx context.Context, _ struct{}) (struct{}, error) {
					logger.Warn("lock expired while the command was running")
					return struct{}{}, xerrors.Wrapf(dlock.ErrReleaseFailed, "key: %s", l.Key())
				},
				Wait: flags.wait,
			})
			return withExitCode(err)
		},
	}
	flags.bind(cmd)
	return cmd
}
