package trace

// Config 链路追踪配置
type Config struct {
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"` // OTLP gRPC 地址，如 localhost:4317
	Sampler     float64 `mapstructure:"sampler"`  // 采样率 [0, 1]
	Batcher     string  `mapstructure:"batcher"`  // batch|simple
	Insecure    bool    `mapstructure:"insecure"`
}

// DefaultConfig 返回本地 collector 的默认配置
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Endpoint:    "localhost:4317",
		Sampler:     1.0,
		Batcher:     "batch",
		Insecure:    true,
	}
}
