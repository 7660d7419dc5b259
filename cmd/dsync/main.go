// dsync 命令行工具：在 Redis 上加分布式锁执行命令，或操作分布式令牌桶。
//
//	dsync lock try report --lease 30 --wait 2s
//	dsync lock run nightly-job -- ./backup.sh
//	dsync limit acquire api --rate 10 --permits 5 --timeout 2s
//	dsync limit drain api --rate 10
//
// 退出码：2 锁被占用，3 被限流，4 执行期间租约丢失，1 其他错误。
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
