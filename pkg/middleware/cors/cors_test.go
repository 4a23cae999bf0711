package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(origins []string, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins))
	r.GET("/listings", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.OPTIONS("/listings", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	req := httptest.NewRequest(method, "/listings", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAllowsConfiguredOrigin(t *testing.T) {
	w := serve([]string{"https://cards.example/"}, http.MethodGet, "https://cards.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://cards.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOmitsUnknownOrigin(t *testing.T) {
	w := serve([]string{"https://cards.example"}, http.MethodGet, "https://evil.example")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflightShortCircuits(t *testing.T) {
	w := serve(nil, http.MethodOptions, "https://any.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://any.example", w.Header().Get("Access-Control-Allow-Origin"))
}
