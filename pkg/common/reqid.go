package common

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-Id"
	CtxKeyRequestID = "request_id"

	maxRequestIDLen = 64
)

// RequestID keeps a client supplied id when it is short and limited to
// [A-Za-z0-9._-]; anything else is replaced by a fresh uuid so headers cannot
// smuggle arbitrary text into the logs.
func RequestID(header string) string {
	if validRequestID(header) {
		return header
	}
	return uuid.NewString()
}

func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// RequestIDFromGin returns the id set by the request id middleware, or "".
func RequestIDFromGin(c *gin.Context) string {
	return c.GetString(CtxKeyRequestID)
}
