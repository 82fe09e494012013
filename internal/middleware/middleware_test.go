package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(r *gin.Engine, method, path, origin string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestCORSWildcard(t *testing.T) {
	r := gin.New()
	r.Use(CORS("*"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/health", "http://anywhere.test")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))

	w = serve(r, http.MethodOptions, "/health", "http://anywhere.test")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCORSAllowList(t *testing.T) {
	r := gin.New()
	r.Use(CORS("http://localhost:3000, http://studio.test"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/health", "http://studio.test")
	assert.Equal(t, "http://studio.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = serve(r, http.MethodGet, "/health", "http://evil.test")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Methods"))
}

type recorded struct {
	method, path string
	status       int
}

type fakeRecorder struct{ got []recorded }

func (f *fakeRecorder) RecordHTTPRequest(method, path string, status int, _ time.Duration) {
	f.got = append(f.got, recorded{method, path, status})
}

func TestLoggerAndMetrics(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	rec := &fakeRecorder{}
	r := gin.New()
	r.Use(Logger(zap.New(core)), Metrics(rec))
	r.GET("/reel-status/:job_id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	serve(r, http.MethodGet, "/reel-status/edit_1", "")
	serve(r, http.MethodGet, "/boom", "")
	serve(r, http.MethodGet, "/nope", "")

	assert.Equal(t, []recorded{
		{http.MethodGet, "/reel-status/:job_id", 200},
		{http.MethodGet, "/boom", 500},
		{http.MethodGet, "unmatched", 404},
	}, rec.got)

	entries := logs.All()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, "/reel-status/edit_1", entries[0].ContextMap()["path"])
		assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	}
}
