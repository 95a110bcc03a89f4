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

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/knowledge"
	"github.com/projectsmartedu/SmartEducation-sub001/core/progress"
	"github.com/projectsmartedu/SmartEducation-sub001/core/revision"
	"github.com/projectsmartedu/SmartEducation-sub001/services/realtime"
)

type (
	// Deps are the services behind the API.
	Deps struct {
		RevisionSvc *revision.Service
		ProgressSvc *progress.Service
		Knowledge   *knowledge.Aggregator
		Hub         *realtime.Hub
		// Health reports whether the store answers; nil means always healthy.
		Health func(ctx context.Context) error
	}

	Server struct {
		conf       *core.Config
		logger     core.Logger
		deps       *Deps
		validate   *validator.Validate
		translator ut.Translator
		app        *echo.Echo
		errors     chan error
		shutdown   chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	deps *Deps,
) *Server {
	s := &Server{
		conf:       conf,
		logger:     logger,
		deps:       deps,
		validate:   validate,
		translator: translator,
		app:        echo.New(),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.logger, s.translator, s.signalShutdown)
	s.app.Debug = s.conf.Debug

	s.app.GET("/", home)
	s.app.GET("/health", s.health)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(s.conf))

	registerProgressAPI(v1, jwt, s.deps.ProgressSvc, s.deps.Knowledge)
	registerRevisionAPI(v1, jwt, s.deps.RevisionSvc)
	registerEventsAPI(v1, jwt, s.deps.Hub)
}

// Start serves until Shutdown; a listener failure is sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// Shutdown ends the open event streams, then waits for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.deps.Hub != nil {
		s.deps.Hub.CloseAll()
	}
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) health(ctx echo.Context) error {
	if s.deps.Health != nil {
		if err := s.deps.Health(ctx.Request().Context()); err != nil {
			s.logger.Error("health check failed", err)
			return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to SmartEducation API!")
}
