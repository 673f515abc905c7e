package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
	"github.com/heluDuyne/lingolab/services/metrics"
	"github.com/heluDuyne/lingolab/services/upload"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Registry       *attempt.Registry
		Media          *upload.DiskStore
		Metrics        *metrics.Metrics
		Gatherer       prometheus.Gatherer
		DisableReqLogs bool
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}

	appValidator struct{}
)

func (appValidator) Validate(i interface{}) error {
	return core.Validate.Struct(i)
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(s.metricsMiddleware)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Validator = appValidator{}
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	s.app.Static("/media", s.deps.Media.Dir())

	api := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(jwtConfig(conf))

	registerAttemptAPI(api, jwt, s.deps.Registry, s.deps.Metrics)
	registerUploadAPI(api, jwt, s.deps.Media, s.deps.Metrics)
}

func (s *Server) metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := next(ctx)
		if err != nil {
			ctx.Error(err)
		}
		req := ctx.Request()
		s.deps.Metrics.ObserveHTTPRequest(req.Method, ctx.Path(), ctx.Response().Status, time.Since(start))
		return nil
	}
}

// Start listens on the configured address; errors are reported on Errors().
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.deps.Conf.Server.Addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error { return s.app.Close() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to LingoLab grading API!")
}
