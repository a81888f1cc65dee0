// Package dashboard is the HTTP boundary of the phone dashboard.
//
// Ownership boundary:
// - maps telemetry, lease, and command results onto JSON responses
// - maps component errors onto HTTP status codes
// - serves the optional static UI directory
//
// It holds no state of its own; every sample is recomputed per request.
package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/edgedash/internal/commands"
	"github.com/danmuck/edgedash/internal/observability"
	"github.com/danmuck/edgedash/internal/probe"
	"github.com/danmuck/edgedash/internal/routeros"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

type Telemetry interface {
	Battery(ctx context.Context) (probe.Battery, error)
	Wifi(ctx context.Context) (probe.Wifi, error)
	System(ctx context.Context) (probe.SystemInfo, error)
	Network(ctx context.Context) (probe.NetworkStats, error)
}

type Leases interface {
	Leases(ctx context.Context) ([]routeros.Lease, error)
}

type Commands interface {
	Run(ctx context.Context, id string) (commands.Result, error)
	List() []commands.Metadata
}

type Tunnel interface {
	Status(ctx context.Context) string
}

// Deps are the components behind the endpoints.
type Deps struct {
	Telemetry Telemetry
	Leases    Leases
	Commands  Commands
	Tunnel    Tunnel
}

type Options struct {
	Addr        string
	CorsOrigins []string
	StaticDir   string
}

type Server struct {
	deps   Deps
	opts   Options
	router *gin.Engine
}

func New(deps Deps, opts Options) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(corsConfig(opts.CorsOrigins)))
	// promhttp negotiates its own encoding.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		deps:   deps,
		opts:   opts,
		router: r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on opts.Addr until ctx is canceled, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.opts.Addr).Msg("dashboard_listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info().Msg("dashboard_shutdown")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Origin", "Content-Type", observability.RequestIDHeader},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
