package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"mdstream.com/pkg/common"
	"mdstream.com/pkg/logger"
	"mdstream.com/pkg/metrics"
	"mdstream.com/pkg/ratelimit"
)

// RateLimit throttles per client IP and route.
func RateLimit(store *ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := c.ClientIP() + ":" + route

		if !store.Allow(key) {
			// Expected rejection: no stack, it would flood the log under load.
			logger.Warn(c, "http rate limited",
				zap.String("request_id", common.RequestIDFromGin(c)),
				zap.String("ip", c.ClientIP()),
				zap.String("route", route),
			)
			metrics.RateLimitBlockTotal.WithLabelValues("http", route).Inc()
			common.Fail(c, http.StatusTooManyRequests, common.CodeRateLimited, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
