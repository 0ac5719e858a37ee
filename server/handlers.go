package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/a11y-lens/backend/logging"
	"github.com/a11y-lens/backend/middleware"
	"github.com/a11y-lens/backend/normalizer"
	"github.com/a11y-lens/backend/proxy"
	"github.com/a11y-lens/backend/stats"
	"github.com/a11y-lens/backend/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func readBody(c *gin.Context, limit int64) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		}
		return nil, false
	}
	return body, true
}

func (s *Server) analyze(c *gin.Context) {
	sessionID, _ := session(c, true)
	logger := logging.Session(s.logger, sessionID)

	body, ok := readBody(c, proxy.MaxBodyBytes)
	if !ok {
		return
	}

	req, err := proxy.ParseRequest(c.GetHeader("Content-Type"), body)
	if err != nil {
		var verr *proxy.ValidationError
		if errors.As(err, &verr) {
			c.JSON(verr.Status, gin.H{"error": verr.Message})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger.Info("forwarding analysis",
		zap.Int("files", len(req.Files)),
		zap.String("url", req.URL),
	)

	resp, err := proxy.Forward(c.Request.Context(), s.backend, req)
	if err != nil {
		var berr *proxy.BackendError
		if !errors.As(err, &berr) {
			berr = &proxy.BackendError{Kind: proxy.ErrFailed, Detail: err.Error(), Err: err}
		}
		logger.Warn("analysis failed", zap.Error(berr), zap.Int("status", berr.HTTPStatus()))
		c.JSON(berr.HTTPStatus(), gin.H{
			"error":   berr.Message(),
			"details": berr.Detail,
		})
		return
	}

	if err := s.results.Put(c.Request.Context(), store.Key(sessionID), resp.Body); err != nil {
		// The client still gets its analysis; only the stored copy is lost.
		logger.Error("storing analysis failed", zap.Error(err))
	}

	c.Data(resp.StatusCode, "application/json; charset=utf-8", resp.Body)
}

func (s *Server) getResults(c *gin.Context) {
	sessionID, ok := session(c, false)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No analysis results found"})
		return
	}
	logger := logging.Session(s.logger, sessionID)

	raw, err := s.results.Get(c.Request.Context(), store.Key(sessionID))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No analysis results found"})
		return
	}
	if err != nil {
		logger.Error("loading analysis failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load analysis results"})
		return
	}

	results, fallback := normalizer.NormalizeOrFallback(raw, nil)
	if fallback {
		logger.Warn("stored analysis is malformed, serving sample results")
		c.Header(middleware.ResultsSourceHeader, "sample")
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) deleteResults(c *gin.Context) {
	if sessionID, ok := session(c, false); ok {
		if err := s.results.Delete(c.Request.Context(), store.Key(sessionID)); err != nil {
			logging.Session(s.logger, sessionID).Error("deleting analysis failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete analysis results"})
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) normalize(c *gin.Context) {
	body, ok := readBody(c, proxy.MaxBodyBytes)
	if !ok {
		return
	}

	results, err := normalizer.Normalize(body)
	if err != nil {
		var malformed *normalizer.MalformedInputError
		if errors.As(err, &malformed) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "Malformed analysis response",
				"details": malformed.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) statistics(c *gin.Context) {
	response := gin.H{}

	if s.stats != nil {
		months := make(map[string]stats.MonthlyStats)
		for _, month := range s.stats.GetAllMonths() {
			if m, ok := s.stats.GetMonthlyStats(month); ok {
				months[month] = m
			}
		}
		response["current"] = s.stats.GetCurrentStats()
		response["months"] = months
	}

	if mem, ok := s.results.(*store.MemoryStore); ok {
		response["store"] = mem.Stats()
	}

	c.JSON(http.StatusOK, response)
}
