package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GinMiddleware 创建 Gin 限流中间件，每个请求消耗 1 个令牌
//
// 参数:
//   - limiter: 限流器实例
//   - keyFunc: 从请求中提取限流键的函数，如果为 nil，默认使用客户端 IP
//   - limitFunc: 获取限流规则的函数
//
// 使用示例:
//
//	limit, _ := ratelimit.NewLimit(10, 2) // 10 QPS，可突发 20
//	r := gin.New()
//	r.Use(ratelimit.GinMiddleware(limiter,
//	    nil, // 使用默认的 IP 作为 key
//	    func(c *gin.Context) ratelimit.Limit { return limit },
//	))
func GinMiddleware(
	limiter Limiter,
	keyFunc func(*gin.Context) string,
	limitFunc func(*gin.Context) Limit,
) gin.HandlerFunc {
	if limiter == nil {
		limiter = Discard()
	}
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string {
			return c.ClientIP()
		}
	}
	if limitFunc == nil {
		limitFunc = func(*gin.Context) Limit { return Limit{} }
	}

	return func(c *gin.Context) {
		key := keyFunc(c)
		if key == "" {
			c.Next()
			return
		}

		limit := limitFunc(c)
		if limit.Validate() != nil {
			// 无效的限流规则，放行
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.FormatFloat(limit.Rate, 'f', -1, 64))

		allowed, err := limiter.TryAcquire(c.Request.Context(), key, limit, 1)
		if err != nil {
			// 降级策略：限流器出错时放行，避免影响业务
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// GinMiddlewarePerUser 创建基于用户 ID 的限流中间件
// 需要前置中间件在上下文中设置 userID，没有时退化为按 IP 限流
func GinMiddlewarePerUser(
	limiter Limiter,
	limitFunc func(*gin.Context) Limit,
) gin.HandlerFunc {
	return GinMiddleware(limiter, func(c *gin.Context) string {
		if uid := c.GetString("userID"); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}, limitFunc)
}

// GinMiddlewarePerPath 创建基于路径的限流中间件，不同路径使用不同的规则
//
// 使用示例:
//
//	login, _ := ratelimit.NewLimit(5, 2)
//	data, _ := ratelimit.NewLimit(100)
//	r.Use(ratelimit.GinMiddlewarePerPath(limiter, map[string]ratelimit.Limit{
//	    "/api/login": login,
//	    "/api/data":  data,
//	}, data))
func GinMiddlewarePerPath(
	limiter Limiter,
	pathLimits map[string]Limit,
	defaultLimit Limit,
) gin.HandlerFunc {
	return GinMiddleware(
		limiter,
		func(c *gin.Context) string {
			return c.ClientIP() + ":" + c.Request.URL.Path
		},
		func(c *gin.Context) Limit {
			if limit, ok := pathLimits[c.Request.URL.Path]; ok {
				return limit
			}
			return defaultLimit
		},
	)
}
