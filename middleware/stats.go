package middleware

import (
	"net/http"
	"time"

	"github.com/a11y-lens/backend/stats"
	"github.com/gin-gonic/gin"
)

// ResultsSourceHeader marks a results response that fell back to sample data
const ResultsSourceHeader = "X-Results-Source"

// Stats records analysis outcomes in storage once the handler has run
func Stats(storage *stats.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if counters, ok := classify(c.Request.Method, c.FullPath(), c.Writer.Status(), c.Writer.Header().Get(ResultsSourceHeader)); ok {
			if counters.AnalysesForwarded > 0 {
				counters.AnalysisTime = time.Since(start)
			}
			storage.Increment(counters)
		}
	}
}

func classify(method, route string, status int, source string) (stats.Counters, bool) {
	var c stats.Counters

	switch {
	case method == http.MethodPost && route == "/api/analyze":
		switch {
		case status >= 200 && status < 300:
			c.AnalysesForwarded = 1
		case status >= 400 && status < 500:
			c.RejectedRequests = 1
		case status >= 500:
			c.BackendFailures = 1
		default:
			return c, false
		}
	case method == http.MethodGet && route == "/api/results" && status == http.StatusOK:
		c.ResultsServed = 1
		if source == "sample" {
			c.NormalizationFallbacks = 1
		}
	case method == http.MethodPost && route == "/api/normalize" && status == http.StatusUnprocessableEntity:
		c.RejectedRequests = 1
	default:
		return c, false
	}
	return c, true
}
