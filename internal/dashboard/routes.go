package dashboard

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/edgedash/internal/commands"
	"github.com/danmuck/edgedash/internal/probe"
	"github.com/danmuck/edgedash/internal/routeros"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const CodeRouterNotConfigured = "router-not-configured"

type runRequest struct {
	Cmd string `json:"cmd"`
}

func (s *Server) registerRoutes() {
	r := s.router

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/battery", func(c *gin.Context) {
		b, err := s.deps.Telemetry.Battery(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	})
	api.GET("/wifi", func(c *gin.Context) {
		w, err := s.deps.Telemetry.Wifi(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	})
	api.GET("/system", func(c *gin.Context) {
		info, err := s.deps.Telemetry.System(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	})
	api.GET("/network", func(c *gin.Context) {
		stats, err := s.deps.Telemetry.Network(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	})
	api.GET("/lan", func(c *gin.Context) {
		leases, err := s.deps.Leases.Leases(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, leases)
	})
	api.GET("/tunnel", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": s.deps.Tunnel.Status(c.Request.Context())})
	})
	api.GET("/commands", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"commands": s.deps.Commands.List()})
	})
	api.POST("/run", func(c *gin.Context) {
		var req runRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		res, err := s.deps.Commands.Run(c.Request.Context(), req.Cmd)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})

	r.NoRoute(s.noRoute)
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
}

// noRoute serves files from the static directory for non-API GETs and a JSON
// 404 for everything else.
func (s *Server) noRoute(c *gin.Context) {
	if s.opts.StaticDir != "" &&
		(c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead) &&
		!strings.HasPrefix(c.Request.URL.Path, "/api/") {
		if path, ok := staticPath(s.opts.StaticDir, c.Request.URL.Path); ok {
			c.File(path)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

func staticPath(dir, urlPath string) (string, bool) {
	rel := filepath.FromSlash(filepath.Clean("/" + urlPath))
	path := filepath.Join(dir, rel)
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if info.IsDir() {
		path = filepath.Join(path, "index.html")
		if info, err = os.Stat(path); err != nil || info.IsDir() {
			return "", false
		}
	}
	return path, true
}

// writeError maps component errors onto status codes. Every branch writes a
// JSON body.
func writeError(c *gin.Context, err error) {
	var (
		unavailable *probe.UnavailableError
		stats       *probe.StatsError
		protocol    *routeros.ProtocolError
	)
	switch {
	case errors.As(err, &unavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": unavailable.Code})
	case errors.As(err, &stats):
		c.JSON(http.StatusInternalServerError, gin.H{"error": stats.Code, "detail": stats.Detail})
	case errors.Is(err, routeros.ErrCredentialsMissing):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": CodeRouterNotConfigured})
	case errors.Is(err, routeros.ErrUnauthorized), errors.As(err, &protocol):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case errors.Is(err, commands.ErrCommandNotAllowed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Command not allowed"})
	case errors.Is(err, commands.ErrSecretNotConfigured):
		c.JSON(http.StatusBadRequest, gin.H{"error": "CLOUDFLARED_TOKEN not set"})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request_failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
