package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"FlightPool/internal/core"
	"FlightPool/internal/observability"
	"FlightPool/internal/oracle"
	"FlightPool/internal/pool"
	"FlightPool/internal/query"
	"FlightPool/internal/registry"
)

// Server is the HTTP API. Writes go through the engine synchronously,
// so callers get precise rejection reasons; reads come from the
// registry (pool listings) and the query service (projections).
type Server struct {
	engine   *core.Engine
	queries  *query.Service
	oracle   *oracle.FlightOracle
	registry *registry.Registry
	health   *observability.HealthChecker
	metrics  *observability.Metrics
	logger   zerolog.Logger
	router   *gin.Engine
}

type Config struct {
	Engine   *core.Engine
	Queries  *query.Service
	Oracle   *oracle.FlightOracle
	Registry *registry.Registry
	Health   *observability.HealthChecker
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
}

func NewServer(cfg Config) *Server {
	s := &Server{
		engine:   cfg.Engine,
		queries:  cfg.Queries,
		oracle:   cfg.Oracle,
		registry: cfg.Registry,
		health:   cfg.Health,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.instrument())

	router.GET("/healthz", gin.WrapF(s.health.LivenessHandler))
	router.GET("/readyz", gin.WrapF(s.health.ReadinessHandler))

	v1 := router.Group("/v1")
	{
		v1.POST("/pools", s.createPool)
		v1.GET("/pools", s.listPools)
		v1.GET("/pools/:pool_id", s.getPool)
		v1.POST("/pools/:pool_id/funds", s.addFunds)
		v1.POST("/pools/:pool_id/policies", s.purchasePolicy)
		v1.GET("/pools/:pool_id/policies", s.listPolicies)
		v1.GET("/pools/:pool_id/policies/:policy_id", s.getPolicy)
		v1.POST("/pools/:pool_id/claims", s.processClaim)
		v1.GET("/pools/:pool_id/journal", s.journalHistory)
		v1.GET("/integrity", s.verifyIntegrity)
		v1.PUT("/oracle/flights/:flight_number", s.setDelayStatus)
		v1.GET("/oracle/flights/:flight_number", s.getDelayStatus)
	}

	s.router = router
	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if s.metrics == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		s.metrics.HTTPDuration.WithLabelValues(
			c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// statusFor maps engine rejections to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pool.ErrPoolNotFound), errors.Is(err, pool.ErrPolicyNotFound):
		return http.StatusNotFound
	case errors.Is(err, pool.ErrIncorrectPremium):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pool.ErrAlreadyClaimed),
		errors.Is(err, pool.ErrInsufficientPoolFunds),
		errors.Is(err, core.ErrDuplicateEvent):
		return http.StatusConflict
	case errors.Is(err, pool.ErrInvalidAmount), errors.Is(err, pool.ErrInvalidTerms):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parsePoolID(c *gin.Context) (uuid.UUID, bool) {
	poolID, err := uuid.Parse(c.Param("pool_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pool_id must be a UUID"})
		return uuid.Nil, false
	}
	return poolID, true
}
