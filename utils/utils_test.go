package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestGenerateDashlessUUID(t *testing.T) {
	id := GenerateDashlessUUID()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")

	other := GenerateDashlessUUID()
	assert.NotEqual(t, id, other)
}

func TestGinErrorHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		fn     func(*gin.Context, string)
		status int
	}{
		{"bad request", GinBadRequest, http.StatusBadRequest},
		{"unauthorized", GinUnauthorized, http.StatusUnauthorized},
		{"not found", GinNotFound, http.StatusNotFound},
		{"internal", GinInternalServerError, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)

			tc.fn(c, "boom")

			assert.Equal(t, tc.status, w.Code)
			assert.JSONEq(t, `{"error": "boom"}`, w.Body.String())
			assert.True(t, c.IsAborted())
		})
	}
}
