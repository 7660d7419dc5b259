package metrics

// Config 指标配置
//
//	metrics:
//	  enabled: true
//	  service_name: "order-svc"
//	  port: 9090
//	  path: "/metrics"
//	  runtime: true
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	// Port 大于 0 时启动独立的 HTTP 服务暴露 Path
	Port int    `mapstructure:"port"`
	Path string `mapstructure:"path"`
	// Runtime 同时采集 Go 运行时指标（GC、goroutine、内存）
	Runtime bool `mapstructure:"runtime"`
}

func (c *Config) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "dsync"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
}
