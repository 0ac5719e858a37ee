package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/a11y-lens/backend/middleware"
	"github.com/a11y-lens/backend/proxy"
	"github.com/a11y-lens/backend/stats"
	"github.com/a11y-lens/backend/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Options wires the server's collaborators
type Options struct {
	Backend        proxy.AnalysisBackend
	Results        store.ResultStore
	Stats          *stats.Storage
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Server is the HTTP API in front of the analysis backend
type Server struct {
	backend proxy.AnalysisBackend
	results store.ResultStore
	stats   *stats.Storage
	limiter *middleware.RateLimiter
	origins []string
	logger  *zap.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		backend: opts.Backend,
		results: opts.Results,
		stats:   opts.Stats,
		limiter: opts.RateLimiter,
		origins: opts.AllowedOrigins,
		logger:  logger,
	}
}

// Router builds the gin engine with middleware and API routes
func (s *Server) Router() *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.ErrorHandler(s.logger))
	r.Use(middleware.CORS(s.origins))
	if s.stats != nil {
		r.Use(middleware.Stats(s.stats))
	}

	api := r.Group("/api")
	{
		api.GET("/health", s.health)

		analyze := []gin.HandlerFunc{s.analyze}
		if s.limiter != nil {
			analyze = append([]gin.HandlerFunc{s.limiter.RateLimit()}, analyze...)
		}
		api.POST("/analyze", analyze...)

		api.GET("/results", s.getResults)
		api.DELETE("/results", s.deleteResults)
		api.POST("/normalize", s.normalize)
		api.GET("/statistics", s.statistics)
	}

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
