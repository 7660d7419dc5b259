package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ceyewan/dsync/ratelimit"
	"github.com/ceyewan/dsync/xerrors"
)

type limitFlags struct {
	rate      float64
	maxBurst  float64
	initBurst float64
}

func (f *limitFlags) bind(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.rate, "rate", 0, "permits generated per second")
	cmd.Flags().Float64Var(&f.maxBurst, "max-burst", 1, "bucket capacity in seconds of rate")
	cmd.Flags().Float64Var(&f.initBurst, "init-burst", -1, "initial permits in seconds of rate, defaults to --max-burst")
	_ = cmd.MarkFlagRequired("rate")
}

func (f *limitFlags) limit() (ratelimit.Limit, error) {
	if f.initBurst < 0 {
		return ratelimit.NewLimit(f.rate, f.maxBurst)
	}
	return ratelimit.NewLimit(f.rate, f.maxBurst, f.initBurst)
}

func newLimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "limit",
		Short: "Perform distributed token bucket operations",
	}
	cmd.AddCommand(newLimitAcquireCmd(), newLimitDrainCmd())
	return cmd
}

func newLimitAcquireCmd() *cobra.Command {
	var (
		flags   limitFlags
		permits int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "acquire [key]",
		Short: "Take permits from a shared bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := flags.limit()
			if err != nil {
				return err
			}
			bucket, err := ratelimit.Create(appFrom(cmd).Limiter, args[0], limit)
			if err != nil {
				return err
			}

			start := time.Now()
			ok, err := bucket.TryAcquireTimeout(cmd.Context(), permits, timeout)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "denied %d permits on %s\n", permits, bucket.Key())
				return withExitCode(xerrors.Wrapf(ratelimit.ErrRateLimitExceeded, "key: %s", bucket.Key()))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %d permits on %s after %s\n",
				permits, bucket.Key(), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().IntVar(&permits, "permits", 1, "number of permits to take")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait for refill, 0 never waits")
	return cmd
}

func newLimitDrainCmd() *cobra.Command {
	var flags limitFlags
	cmd := &cobra.Command{
		Use:   "drain [key]",
		Short: "Take every whole permit currently in a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := flags.limit()
			if err != nil {
				return err
			}
			n, err := appFrom(cmd).Limiter.TryGetAllPermits(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "drained %d permits from %s\n", n, args[0])
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}
