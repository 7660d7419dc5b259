// Package config 加载 dsync 进程的配置，基于 viper。
//
// 配置来源（优先级从高到低）：
//   - 环境变量：<EnvPrefix>_<KEY>，"." 替换为 "_"，如 DSYNC_DLOCK_PREFIX
//   - .env 文件（工作目录及各搜索路径）
//   - 环境特定配置文件：<Name>.<env>.yaml，env 取自 <EnvPrefix>_ENV
//   - 基础配置文件：<Name>.yaml
//   - WithDefaults 注册的默认值
//
// 使用示例：
//
//	loader := config.MustLoad(
//	    config.WithConfigName("dsync"),
//	    config.WithDefaults(map[string]any{"dlock.lease_seconds": 10}),
//	)
//	var cfg dlock.Config
//	_ = loader.UnmarshalKey("dlock", &cfg)
//
// UnmarshalKey 读取的是该 key 下的整棵子树，环境变量只对 Unmarshal 的逐项读取生效，
// 需要环境变量覆盖时对整个配置结构体调用 Unmarshal。
//
// 文件变更通过 fsnotify 监听，Watch 返回指定 key 的变更事件。
package config

import (
	"context"
	"time"
)

// Loader 配置加载器
type Loader interface {
	// Load 从所有来源加载配置并开始监听文件变更
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将全部配置解码到结构体（mapstructure 标签）
	Unmarshal(v any) error

	// UnmarshalKey 将指定 key 下的配置解码到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听 key 的变化，ctx 取消后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// Validate 校验已加载的配置
	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Source    string // "file"
	Timestamp time.Time
}
