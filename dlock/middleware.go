package dlock

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/dsync/clog"
)

// GinMiddleware 为每个请求创建可重入 scope，并按 keyFunc 串行化同一资源上的请求。
//
// keyFunc 返回空串时不加锁，只注入 scope。没拿到锁返回 409。
// 加锁出错（非法 key、请求取消等）时返回 503，不会在未持锁的情况下执行 handler。
//
//	r.POST("/orders/:id/pay", dlock.GinMiddleware(locks, func(c *gin.Context) string {
//	    return "order:" + c.Param("id")
//	}, 2*time.Second), payHandler)
func GinMiddleware(locks *Factory, keyFunc func(*gin.Context) string, wait time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithReentrantScope(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)

		key := keyFunc(c)
		if key == "" || locks == nil {
			c.Next()
			return
		}

		l, err := locks.New(key)
		if err != nil {
			abortUnavailable(c, locks, key, err)
			return
		}

		var ok bool
		if wait > 0 {
			ok, err = l.TryLockTimeout(ctx, wait)
		} else {
			ok, err = l.TryLock(ctx)
		}
		if err != nil {
			abortUnavailable(c, locks, key, err)
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": "resource is locked",
			})
			return
		}
		defer func() {
			_ = l.Unlock(context.WithoutCancel(ctx))
		}()

		c.Next()
	}
}

func abortUnavailable(c *gin.Context, locks *Factory, key string, err error) {
	locks.logger.WarnContext(c.Request.Context(), "lock middleware failed", clog.String("key", key), clog.Error(err))
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
		"error": "lock unavailable",
	})
}
