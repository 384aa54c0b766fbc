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
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(method, "/ping", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORSOpenPolicyUsesWildcard(t *testing.T) {
	w := serve(nil, http.MethodGet, "https://anywhere.test")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSEchoesListedOrigin(t *testing.T) {
	w := serve([]string{"https://app.center.test/"}, http.MethodGet, "https://app.center.test")
	assert.Equal(t, "https://app.center.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSMatchesSubdomainWildcard(t *testing.T) {
	origins := []string{"https://*.center.test"}
	assert.Equal(t, "https://parents.center.test", serve(origins, http.MethodGet, "https://parents.center.test").Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, serve(origins, http.MethodGet, "http://parents.center.test").Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, serve(origins, http.MethodGet, "https://center.test.evil").Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	w := serve([]string{"https://app.center.test"}, http.MethodGet, "https://other.test")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	w := serve([]string{"https://app.center.test"}, http.MethodOptions, "https://app.center.test")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Confirmation-Token")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
}
