package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ceyewan/dsync/config"
	"github.com/ceyewan/dsync/internal/app"
)

// Version dsync 版本号
const Version = "0.1.0"

type appKey struct{}

func newRootCmd() *cobra.Command {
	var (
		configName string
		configPath string
		redisAddr  string
		logLevel   string
	)

	root := &cobra.Command{
		Use:   "dsync",
		Short: "distributed lock and rate limiter on redis",
		Long: fmt.Sprintf(`dsync (v%s)

Acquire distributed locks and shared token-bucket permits backed by Redis.
Configuration is read from <config>.yaml and DSYNC_* environment variables.`, Version),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configName, "config", "dsync", "config file name without extension")
	root.PersistentFlags().StringVar(&configPath, "config-path", ".", "directory containing the config file")
	root.PersistentFlags().StringVar(&redisAddr, "redis", "", "redis address, overrides the config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides the config file")

	// 只有 lock 与 limit 子命令需要连接 Redis
	setup := func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cfg, err := app.LoadConfig(ctx, config.WithConfigName(configName), config.WithConfigPaths(configPath))
		if err != nil {
			return err
		}
		if redisAddr != "" {
			cfg.Redis.Addr = redisAddr
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		cmd.SetContext(context.WithValue(ctx, appKey{}, a))
		return nil
	}
	teardown := func(cmd *cobra.Command, _ []string) error {
		return appFrom(cmd).Close(context.WithoutCancel(cmd.Context()))
	}

	for _, group := range []*cobra.Command{newLockCmd(), newLimitCmd()} {
		group.PersistentPreRunE = setup
		group.PersistentPostRunE = teardown
		root.AddCommand(group)
	}
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of dsync",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dsync v%s\n", Version)
		},
	})
	return root
}

func appFrom(cmd *cobra.Command) *app.App {
	return cmd.Context().Value(appKey{}).(*app.App)
}
