package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"taskboard/internal/result"
	"taskboard/internal/store"
	"taskboard/internal/task"
	"taskboard/pkg/cache"
)

// Service is the task API the HTTP layer drives. *task.Manager implements it.
type Service interface {
	List(ctx context.Context) ([]store.Task, error)
	Get(ctx context.Context, id string) (store.Task, error)
	Create(ctx context.Context, in task.NewTask) (store.Task, error)
	SetDone(ctx context.Context, id string, done bool) (store.Task, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	StoreVersion(ctx context.Context) (string, error)
}

type Options struct {
	PublicDir       string
	StaticCacheTTL  time.Duration
	ShutdownTimeout time.Duration
	Logger          *log.Logger
}

type Server struct {
	svc      Service
	exporter *result.Exporter
	opts     Options
	logger   *log.Logger
	assets   *cache.MemoryCache[asset]
	e        *echo.Echo
}

func New(svc Service, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.PublicDir == "" {
		opts.PublicDir = "public"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		svc:      svc,
		exporter: result.NewExporter(svc),
		opts:     opts,
		logger:   opts.Logger,
		assets:   cache.NewMemory[asset](opts.StaticCacheTTL),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}
	e.HTTPErrorHandler = s.handleError
	e.Use(requestLogger(s.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(noStore)
	s.register(e)
	s.e = e
	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// ListenAndServe serves on addr until ctx is cancelled, then drains in-flight
// requests for at most the shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("http server listening")
		errCh <- s.e.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
