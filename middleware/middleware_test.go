package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/a11y-lens/backend/stats"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

func perform(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestErrorHandlerRecoversPanics(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)

	r := gin.New()
	r.Use(ErrorHandler(zap.New(core)))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "fine") })

	w := perform(r, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"An unexpected error occurred"}`, w.Body.String())

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "panic recovered", entry.Message)
	assert.Equal(t, "/boom", entry.ContextMap()["path"])

	w = perform(r, http.MethodGet, "/ok", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "buckets are per client")

	now = now.Add(500 * time.Millisecond)
	assert.False(t, rl.Allow("a"))
	now = now.Add(600 * time.Millisecond)
	assert.True(t, rl.Allow("a"))

	now = now.Add(time.Hour)
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"), "refill never exceeds the bucket size")
}

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(time.Minute)
	rl.Allow("new")

	assert.Equal(t, 1, rl.Prune(30*time.Second))
	assert.Equal(t, 0, rl.Prune(30*time.Second))
	assert.True(t, rl.Allow("old"))
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)

	r := gin.New()
	r.Use(rl.RateLimit())
	r.POST("/api/analyze", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/api/analyze", nil).Code)

	w := perform(r, http.MethodPost, "/api/analyze", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"Rate limit exceeded. Please try again later."}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	r.GET("/api/results", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/api/results", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Session-ID")

	w = perform(r, http.MethodGet, "/api/results", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = perform(r, http.MethodOptions, "/api/results", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCORSWildcard(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"*"}))
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/api/health", map[string]string{"Origin": "https://anywhere.example"})
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		method string
		route  string
		status int
		source string
		want   stats.Counters
		ok     bool
	}{
		{"forwarded", http.MethodPost, "/api/analyze", 200, "", stats.Counters{AnalysesForwarded: 1}, true},
		{"rejected", http.MethodPost, "/api/analyze", 400, "", stats.Counters{RejectedRequests: 1}, true},
		{"rate limited", http.MethodPost, "/api/analyze", 429, "", stats.Counters{RejectedRequests: 1}, true},
		{"backend down", http.MethodPost, "/api/analyze", 503, "", stats.Counters{BackendFailures: 1}, true},
		{"served", http.MethodGet, "/api/results", 200, "", stats.Counters{ResultsServed: 1}, true},
		{"fallback", http.MethodGet, "/api/results", 200, "sample", stats.Counters{ResultsServed: 1, NormalizationFallbacks: 1}, true},
		{"no results", http.MethodGet, "/api/results", 404, "", stats.Counters{}, false},
		{"malformed normalize", http.MethodPost, "/api/normalize", 422, "", stats.Counters{RejectedRequests: 1}, true},
		{"health", http.MethodGet, "/api/health", 200, "", stats.Counters{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := classify(tt.method, tt.route, tt.status, tt.source)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatsMiddleware(t *testing.T) {
	dir, err := os.MkdirTemp("", "middleware-stats-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	storage, err := stats.NewStorage(dir, nil)
	require.NoError(t, err)
	defer storage.Shutdown()

	r := gin.New()
	r.Use(Stats(storage))
	r.GET("/api/results", func(c *gin.Context) {
		c.Header(ResultsSourceHeader, "sample")
		c.Status(http.StatusOK)
	})
	r.POST("/api/analyze", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	perform(r, http.MethodGet, "/api/results", nil)
	perform(r, http.MethodPost, "/api/analyze", nil)
	perform(r, http.MethodGet, "/unknown", nil)

	current := storage.GetCurrentStats()
	assert.Equal(t, 1, current.ResultsServed)
	assert.Equal(t, 1, current.NormalizationFallbacks)
	assert.Equal(t, 1, current.BackendFailures)
	assert.Equal(t, 0, current.AnalysesForwarded)
	assert.Zero(t, current.AnalysisTimeMs, "failed analyses are not timed")
}

func TestStatsMiddlewareTimesAnalyses(t *testing.T) {
	storage, err := stats.NewStorage(t.TempDir(), nil)
	require.NoError(t, err)
	defer storage.Shutdown()

	r := gin.New()
	r.Use(Stats(storage))
	r.POST("/api/analyze", func(c *gin.Context) {
		time.Sleep(20 * time.Millisecond)
		c.Status(http.StatusOK)
	})

	perform(r, http.MethodPost, "/api/analyze", nil)

	current := storage.GetCurrentStats()
	assert.Equal(t, 1, current.AnalysesForwarded)
	assert.GreaterOrEqual(t, current.AnalysisTimeMs, int64(20))
	assert.Equal(t, float64(current.AnalysisTimeMs), current.AverageAnalysisMs)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/api/results", func(c *gin.Context) {
		c.Set(SessionKey, "s-1")
		c.Status(http.StatusNotFound)
	})
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	perform(r, http.MethodGet, "/api/results", nil)
	perform(r, http.MethodGet, "/api/health", nil)

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "s-1", entries[0].ContextMap()["session"])
	assert.EqualValues(t, http.StatusNotFound, entries[0].ContextMap()["status"])

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.NotContains(t, entries[1].ContextMap(), "session")
}
