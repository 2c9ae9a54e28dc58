package middleware

import (
	"github.com/gin-gonic/gin"
	"mdstream.com/pkg/common"
	"mdstream.com/pkg/logger"
)

// ReqId assigns every request an id, echoes it back and exposes it to the
// logger helpers as the trace id.
func ReqId() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := common.RequestID(c.GetHeader(common.HeaderRequestID))
		c.Set(common.CtxKeyRequestID, rid)
		c.Set(logger.TraceIdKey, rid)
		c.Header(common.HeaderRequestID, rid)
		c.Request = c.Request.WithContext(logger.WithTrace(c.Request.Context(), rid))
		c.Next()
	}
}
