// Package dashboard serves the FlightCheck HTTP API: build CRUD, check
// history, status stats and the on-demand check triggers.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zulandar/flightcheck/internal/metrics"
	"github.com/zulandar/flightcheck/internal/monitor"
	"github.com/zulandar/flightcheck/internal/store"
)

// SweepRunner is the slice of the monitor the dashboard drives.
// *monitor.Monitor satisfies it.
type SweepRunner interface {
	RunSweep(ctx context.Context, mode monitor.SweepMode) (*monitor.Summary, error)
	Running() bool
	Sweeping() bool
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Store    *store.Store
	Monitor  SweepRunner         // optional; check endpoints return 503 without it
	Gatherer prometheus.Gatherer // optional; /metrics is registered when set
	Port     int
	Out      io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("dashboard: store is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(opts.Store, opts.Monitor, opts.Gatherer)

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard API running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// newRouter builds the gin engine with all routes registered.
func newRouter(st *store.Store, mon SweepRunner, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", handleHealth(mon))
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}

	registerRoutes(router, st, mon)
	return router
}
