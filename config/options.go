package config

import (
	"strings"

	"github.com/ceyewan/dsync/clog"
)

// DefaultEnvPrefix 默认环境变量前缀
const DefaultEnvPrefix = "DSYNC"

// Option 加载器选项
type Option func(*options)

type options struct {
	name      string
	paths     []string
	fileType  string
	envPrefix string
	defaults  map[string]any
	logger    clog.Logger
}

func defaultOptions() *options {
	return &options{
		name:      "config",
		paths:     []string{".", "./config"},
		fileType:  "yaml",
		envPrefix: DefaultEnvPrefix,
		defaults:  map[string]any{},
		logger:    clog.Discard(),
	}
}

// WithConfigName 配置文件名（不含扩展名）
func WithConfigName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithConfigPaths 覆盖搜索路径
func WithConfigPaths(paths ...string) Option {
	return func(o *options) {
		o.paths = paths
	}
}

// WithConfigPath 追加一个搜索路径
func WithConfigPath(path string) Option {
	return func(o *options) {
		o.paths = append(o.paths, path)
	}
}

// WithConfigType 配置文件类型（yaml、json、toml ...）
func WithConfigType(typ string) Option {
	return func(o *options) {
		if typ != "" {
			o.fileType = typ
		}
	}
}

// WithEnvPrefix 环境变量前缀，统一转为大写
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.envPrefix = strings.ToUpper(prefix)
		}
	}
}

// WithDefaults 注册默认值。key 使用 "." 分隔的路径。
// 注册过的 key 才能被 Unmarshal 从环境变量中覆盖。
func WithDefaults(defaults map[string]any) Option {
	return func(o *options) {
		for k, v := range defaults {
			o.defaults[k] = v
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("config")
		}
	}
}
