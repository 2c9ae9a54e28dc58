package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"mdstream.com/pkg/logger"
)

// Response is the envelope every HTTP handler replies with.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Business codes. Clients get code+message only, details stay in the log.
const (
	CodeBadRequest  = 1001001
	CodeNotFound    = 1001004
	CodeRateLimited = 1003001
	CodeUnavailable = 1004001
	CodeInternal    = 5000000
)

func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

func FailLogged(c *gin.Context, httpStatus int, code int, msg string, err error) {
	logger.Warn(c, "http error",
		zap.String("request_id", RequestIDFromGin(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("biz_code", code),
		zap.String("message", msg),
		zap.Error(err),
	)
	Fail(c, httpStatus, code, msg)
}
