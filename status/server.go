// Package status serves health and metrics endpoints for the bot process.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Probe reports the live state of the bot.
type Probe interface {
	// GatewayLatency is the last heartbeat round trip, 0 before the first one.
	GatewayLatency() time.Duration
	QueuedChannels() int
}

type Handler struct {
	Probe   Probe
	Started time.Time
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"gateway_latency_ms": h.Probe.GatewayLatency().Milliseconds(),
		"queued_channels":    h.Probe.QueuedChannels(),
		"uptime_seconds":     int64(time.Since(h.Started).Seconds()),
	})
}

// NewRouter builds the status routes.
func NewRouter(probe Probe, registry *prometheus.Registry) *gin.Engine {
	h := &Handler{Probe: probe, Started: time.Now()}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

// Server runs the status router on its own listener.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(addr string, probe Probe, registry *prometheus.Registry, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(probe, registry),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.Named("status"),
	}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Status server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server stopped", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
