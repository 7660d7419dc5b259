package ratelimit

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// 辅助函数
// ============================================================

func setupTestRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/api/login", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func newTestLimiter(t *testing.T) Limiter {
	t.Helper()
	limiter, err := NewStandalone(nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = limiter.Close()
	})
	return limiter
}

func serve(r *gin.Engine, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func staticLimit(limit Limit) func(*gin.Context) Limit {
	return func(*gin.Context) Limit { return limit }
}

// ============================================================
// GinMiddleware
// ============================================================

func TestGinMiddleware(t *testing.T) {
	t.Run("正常请求通过并带上限流头", func(t *testing.T) {
		r := setupTestRouter(GinMiddleware(newTestLimiter(t), nil, staticLimit(Limit{Rate: 10, MaxBurstSeconds: 1, InitBurstSeconds: 1})))

		w := serve(r, "/test", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", w.Body.String())
		assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("被限流的请求返回 429", func(t *testing.T) {
		keyFunc := func(*gin.Context) string { return "limited-client" }
		r := setupTestRouter(GinMiddleware(newTestLimiter(t), keyFunc, staticLimit(testLimit)))

		assert.Equal(t, http.StatusOK, serve(r, "/test", "").Code)
		w := serve(r, "/test", "")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "rate limit exceeded")
	})

	t.Run("不同 IP 独立限流", func(t *testing.T) {
		r := setupTestRouter(GinMiddleware(newTestLimiter(t), nil, staticLimit(testLimit)))

		assert.Equal(t, http.StatusOK, serve(r, "/test", "192.168.1.1:1234").Code)
		assert.Equal(t, http.StatusOK, serve(r, "/test", "192.168.1.2:5678").Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(r, "/test", "192.168.1.1:1234").Code)
	})
}

func TestGinMiddleware_EdgeCases(t *testing.T) {
	t.Run("nil limiter 使用 Discard", func(t *testing.T) {
		r := setupTestRouter(GinMiddleware(nil, nil, staticLimit(testLimit)))
		for i := 0; i < 10; i++ {
			assert.Equal(t, http.StatusOK, serve(r, "/test", "").Code)
		}
	})

	t.Run("nil limitFunc 不限流", func(t *testing.T) {
		limiter := &sequenceLimiter{allowed: []bool{false}}
		r := setupTestRouter(GinMiddleware(limiter, nil, nil))
		assert.Equal(t, http.StatusOK, serve(r, "/test", "").Code)
		assert.Empty(t, limiter.keys)
	})

	t.Run("空 key 放行", func(t *testing.T) {
		limiter := &sequenceLimiter{allowed: []bool{false}}
		keyFunc := func(*gin.Context) string { return "" }
		r := setupTestRouter(GinMiddleware(limiter, keyFunc, staticLimit(testLimit)))
		assert.Equal(t, http.StatusOK, serve(r, "/test", "").Code)
	})

	t.Run("限流器出错时放行", func(t *testing.T) {
		r := setupTestRouter(GinMiddleware(&errorLimiter{err: errors.New("store down")}, nil, staticLimit(testLimit)))
		assert.Equal(t, http.StatusOK, serve(r, "/test", "").Code)
	})
}

func TestGinMiddlewarePerUser(t *testing.T) {
	limiter := &sequenceLimiter{}
	setUser := func(c *gin.Context) {
		if uid := c.GetHeader("X-User"); uid != "" {
			c.Set("userID", uid)
		}
		c.Next()
	}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(setUser, GinMiddlewarePerUser(limiter, staticLimit(testLimit)))
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-User", "42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "10.0.0.1:80"
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"user:42", "ip:10.0.0.1"}, limiter.keys)
}

func TestGinMiddlewarePerPath(t *testing.T) {
	strict := Limit{Rate: 1, MaxBurstSeconds: 1, InitBurstSeconds: 1}
	loose := Limit{Rate: 100, MaxBurstSeconds: 1, InitBurstSeconds: 1}
	r := setupTestRouter(GinMiddlewarePerPath(newTestLimiter(t), map[string]Limit{
		"/api/login": strict,
	}, loose))

	assert.Equal(t, http.StatusOK, serve(r, "/api/login", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "/api/login", "").Code)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(r, "/test", "").Code, "默认规则更宽松")
	}
}
