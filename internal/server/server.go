// Package server exposes the service's HTTP surface: the versioned read
// endpoints, the streaming upgrade, and operational routes. Read requests
// may land on any worker replica; replica caches converge because every
// replica consumes the same event stream.
package server

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/altonen7/dexstream/internal/worker"
)

type Server struct {
	log     *zap.Logger
	workers []*worker.Worker
	next    uint64 // atomic round-robin cursor

	http *http.Server
}

func New(addr string, log *zap.Logger, workers []*worker.Worker) *Server {
	s := &Server{log: log, workers: workers}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(ginzap.Ginzap(log, time.RFC3339, true))
	engine.Use(ginzap.RecoveryWithZap(log, true))
	engine.Use(cors.Default())

	v1 := engine.Group("/v1")
	v1.GET("/markets", s.handleMarkets)
	// Wildcard, not :market — symbols like BTC/USDT contain a slash and a
	// named parameter never matches across segments.
	v1.GET("/recent-trades/*market", s.handleRecentTrades)
	v1.GET("/stats", s.handleStats)
	v1.GET("/ws", s.handleWS)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.http = &http.Server{Addr: addr, Handler: engine}
	return s
}

// pick returns the worker serving this request, rotating across replicas.
func (s *Server) pick() *worker.Worker {
	n := atomic.AddUint64(&s.next, 1)
	return s.workers[n%uint64(len(s.workers))]
}

// aborted reports whether the client gave up on the request; responses to
// gone clients are suppressed rather than written into a dead socket.
func aborted(c *gin.Context) bool {
	select {
	case <-c.Request.Context().Done():
		return true
	default:
		return false
	}
}

func (s *Server) handleMarkets(c *gin.Context) {
	body, err := s.pick().MarketsJSON(c.Request.Context())
	if aborted(c) {
		return
	}
	if err != nil {
		s.log.Error("markets metadata unavailable", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "market metadata is temporarily unavailable"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(body))
}

func (s *Server) handleRecentTrades(c *gin.Context) {
	w := s.pick()
	market := strings.TrimPrefix(c.Param("market"), "/")
	if verr := w.ValidateMarket(market); verr != nil {
		if aborted(c) {
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
		return
	}
	body := w.RecentTrades(market)
	if aborted(c) {
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(body))
}

func (s *Server) handleStats(c *gin.Context) {
	stats := make([]worker.Stats, len(s.workers))
	for i, w := range s.workers {
		stats[i] = w.Stats()
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleWS(c *gin.Context) {
	s.pick().ServeWS(c.Writer, c.Request)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// Handler exposes the routed engine for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
