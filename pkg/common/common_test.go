package common

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	for _, ok := range []string{"abc", "req-1_2.3", strings.Repeat("a", maxRequestIDLen)} {
		assert.Equal(t, ok, RequestID(ok))
	}
	for _, bad := range []string{"", "has space", "line\nbreak", "semi;colon", strings.Repeat("a", maxRequestIDLen+1)} {
		got := RequestID(bad)
		assert.NotEqual(t, bad, got)
		_, err := uuid.Parse(got)
		assert.NoError(t, err, "input %q", bad)
	}
}

func TestResponseEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, RequestIDFromGin(c))
	c.Set(CtxKeyRequestID, "rid")
	assert.Equal(t, "rid", RequestIDFromGin(c))

	Fail(c, http.StatusNotFound, CodeNotFound, "missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, CodeNotFound, resp.Code)
	assert.Equal(t, "missing", resp.Message)
	assert.Nil(t, resp.Data)
}
