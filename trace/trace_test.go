package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/ceyewan/dsync/xerrors"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
		ok   bool
	}{
		{"nil 配置", nil, false},
		{"缺少服务名", &Config{Endpoint: "localhost:4317"}, false},
		{"缺少地址", &Config{ServiceName: "svc"}, false},
		{"采样率越界", &Config{ServiceName: "svc", Endpoint: "x", Sampler: 1.5}, false},
		{"未知 batcher", &Config{ServiceName: "svc", Endpoint: "x", Batcher: "async"}, false},
		{"默认配置", DefaultConfig("svc"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.cfg)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
		})
	}
}

func TestDiscard(t *testing.T) {
	shutdown, err := Discard("dsync-test")
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, span := otel.Tracer(InstrumentationName).Start(context.Background(), SpanLockAcquire)
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())
}
