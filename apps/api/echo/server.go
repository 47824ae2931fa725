package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/course"
	"github.com/trezcool/scholar/core/registration"
	"github.com/trezcool/scholar/core/session"
	"github.com/trezcool/scholar/core/user"
	"github.com/trezcool/scholar/services/telemetry"
)

type ServerDeps struct {
	Conf            *core.Config
	Logger          core.Logger
	UserSvc         user.ServiceInterface
	SessionSvc      session.ServiceInterface
	CourseSvc       course.ServiceInterface
	RegistrationSvc registration.ServiceInterface
	Validate        *validator.Validate
	Translator      ut.Translator
	DisableReqLogs  bool
}

type Server struct {
	app      *echo.Echo
	http     *http.Server // serves app behind the tracing handler
	deps     ServerDeps
	metrics  *metrics
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		app:      echo.New(),
		deps:     deps,
		metrics:  newMetrics(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	s.http = &http.Server{
		Addr:     deps.Conf.Server.Host,
		Handler:  telemetry.Handler(s.app, deps.Conf.Telemetry.ServiceName),
		ErrorLog: s.app.StdLogger,
	}
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
	s.app.Use(s.metrics.middleware)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	s.app.GET("/health", health)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	g := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(jwtConfig(conf))

	registerUserAPI(g, jwt, s.deps)
	registerSessionAPI(g, jwt, s.deps, s.metrics)
	registerCourseAPI(g, jwt, s.deps)
	registerRegistrationAPI(g, jwt, s.deps)
	registerDashboardAPI(g, jwt, s.deps)
}

// Start listens on the configured host. Listening errors are sent on Errors().
func (s *Server) Start() {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.errors <- errors.Wrap(err, "listening")
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.http.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.http.Close()
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.http.Handler.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}

func health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
