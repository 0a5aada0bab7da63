package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/response"
	"github.com/schoolhub/bulkops-backend/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func ok(c *gin.Context) { c.String(http.StatusOK, "ok") }

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireJWT(t *testing.T) {
	tokens := service.NewTokenService("test-secret", time.Hour)
	expired := service.NewTokenService("test-secret", -time.Minute)

	good, err := tokens.Generate("ops", []string{string(model.PermissionTenantsBulk)})
	require.NoError(t, err)
	stale, err := expired.Generate("ops", nil)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/x", RequireJWT(tokens), RequirePermission(model.PermissionTenantsBulk), ok)
	r.GET("/y", RequireJWT(tokens), RequirePermission(model.PermissionEnrollmentsBulk), ok)

	tests := []struct {
		name   string
		path   string
		header string
		status int
		kind   string
	}{
		{"missing token", "/x", "", http.StatusUnauthorized, "TOKEN_REQUIRED"},
		{"garbage token", "/x", "Bearer nope", http.StatusUnauthorized, "TOKEN_INVALID"},
		{"expired token", "/x", "Bearer " + stale, http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"granted", "/x", "Bearer " + good, http.StatusOK, ""},
		{"missing permission", "/y", "Bearer " + good, http.StatusForbidden, "PERMISSION_DENIED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.kind != "" {
				assert.Contains(t, w.Body.String(), `"error_kind":"`+tt.kind+`"`)
			}
		})
	}

	t.Run("query fallback", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/x?token="+good, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/upload", rl.Middleware(), ok)
	hit := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/upload", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(r, req).Code
	}

	assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.2"), "buckets are per client")

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusOK, hit("10.0.0.1"), "bucket refills after the interval")
}

func TestRateLimiter_KeepsPartialInterval(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	now := start
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	now = start.Add(90 * time.Second)
	assert.True(t, rl.allow("a"), "one whole interval elapsed")
	now = start.Add(100 * time.Second)
	assert.False(t, rl.allow("a"))
	// The 30s left over at 90s counts toward the next refill.
	now = start.Add(120 * time.Second)
	assert.True(t, rl.allow("a"))
}

func TestBrotli(t *testing.T) {
	big := strings.Repeat("row,", 1000)

	r := gin.New()
	r.Use(Brotli())
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, big) })
	r.GET("/small", ok)
	r.GET("/metrics", func(c *gin.Context) { c.String(http.StatusOK, big) })

	req := httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "gzip, br;q=1.0")
	w := serve(r, req)
	require.Equal(t, "br", w.Header().Get("Content-Encoding"))
	body, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, big, string(body))

	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = serve(r, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = serve(r, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, big, w.Body.String())
}

func TestCacheHeaders(t *testing.T) {
	r := gin.New()
	r.GET("/template", CacheControl(3600), ok)
	r.GET("/status", NoStore(), ok)

	assert.Equal(t, "public, max-age=3600", serve(r, httptest.NewRequest(http.MethodGet, "/template", nil)).Header().Get("Cache-Control"))
	assert.Equal(t, "no-store", serve(r, httptest.NewRequest(http.MethodGet, "/status", nil)).Header().Get("Cache-Control"))
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	r := gin.New()
	r.Use(response.RequestIDMiddleware(), AccessLog(log))
	r.GET("/ok", ok)
	r.GET("/missing", func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, response.ErrOperationNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(response.HeaderRequestID, "trace-42")
	serve(r, req)
	line := buf.String()
	assert.Contains(t, line, `"level":"info"`)
	assert.Contains(t, line, `"request_id":"trace-42"`)
	assert.Contains(t, line, `"status":200`)

	buf.Reset()
	serve(r, httptest.NewRequest(http.MethodGet, "/missing", nil))
	line = buf.String()
	assert.Contains(t, line, `"level":"warn"`)
	assert.Contains(t, line, `"error_kind":"OPERATION_NOT_FOUND"`)
}
