// Package api exposes the addon orchestration surface over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alcove-sh/alcove/internal/boundaries/in"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	AddonsEnabled bool
	Tokens        map[string]string
	MaxBodyBytes  int64
	// Metrics overrides the prometheus registry; nil uses the default one.
	Metrics *prometheus.Registry
}

// Services bundles the use cases the API serves.
type Services struct {
	Installer in.AddonInstaller
	Caller    in.AddonCaller
	Logs      in.AddonLogReader
	Catalog   in.CatalogReader
}

// Server is the HTTP entrypoint of the subsystem.
type Server struct {
	echo *echo.Echo
	addr string
	log  *log.Logger
}

// NewServer wires middleware, routes and handlers onto a fresh echo instance.
func NewServer(cfg Config, svcs Services, logger *log.Logger) *Server {
	logger = logger.With("component", "http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))

	promMiddleware := echoprometheus.MiddlewareConfig{Subsystem: "alcove"}
	promHandler := echoprometheus.HandlerConfig{}
	if cfg.Metrics != nil {
		promMiddleware.Registerer = cfg.Metrics
		promHandler.Gatherer = cfg.Metrics
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(promMiddleware))

	e.GET("/healthz", healthz)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(promHandler))

	h := &handler{
		installer: svcs.Installer,
		caller:    svcs.Caller,
		logs:      svcs.Logs,
		catalog:   svcs.Catalog,
		maxBody:   cfg.MaxBodyBytes,
		log:       logger,
	}

	// Auth runs before the enabled-flag gate: credentials stay mandatory
	// even while the subsystem is switched off.
	v1 := e.Group("/api/v1", bearerAuth(cfg.Tokens, logger), requireAddons(cfg.AddonsEnabled))
	v1.GET("/addons/available", h.available)
	v1.GET("/addons", h.list)
	v1.POST("/addons/install", h.install)
	v1.GET("/addons/:id", h.get)
	v1.POST("/addons/:id/stop", h.stop)
	v1.GET("/addons/:id/logs", h.addonLogs)
	v1.Match(callMethods, "/addons/:id/call/*", h.call)

	return &Server{
		echo: e,
		addr: fmt.Sprintf(":%d", cfg.Port),
		log:  logger,
	}
}

// callMethods is the verb set routed to the addon proxy endpoint.
var callMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "addr", s.addr)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
