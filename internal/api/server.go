package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"wiki-data-pipeline/internal/api/handler"
	"wiki-data-pipeline/internal/app"
	"wiki-data-pipeline/internal/logging"
	"wiki-data-pipeline/internal/pipeline"
	"wiki-data-pipeline/pkg/router"
	"wiki-data-pipeline/pkg/utils"
)

// Server exposes the job catalogue and run history over HTTP.
type Server struct {
	bind            string
	shutdownTimeout time.Duration
	logger          *slog.Logger
	handler         *handler.PipelineHandler
	server          *http.Server
}

// NewServer builds a server. runs may be nil when no history store is open,
// output may be nil when no artifact directory needs guarding.
func NewServer(ctx context.Context, bind string, shutdownTimeout time.Duration, runner *pipeline.Runner, runs handler.RunStore, output handler.OutputLocker, logger *slog.Logger) *Server {
	logger = logging.NewComponentLogger(logger, "api")
	h := handler.NewPipelineHandler(ctx, runner, runs, output, logger)

	r := router.New(logger)
	RegisterRoutes(r, h)

	return &Server{
		bind:            bind,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
		handler:         h,
		server: &http.Server{
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// NewServerFromApp serves a's runner and history store with the api
// section of its configuration. Triggered runs take a's output lock.
func NewServerFromApp(ctx context.Context, a *app.App) *Server {
	var runs handler.RunStore
	if a.Store != nil {
		runs = a.Store
	}
	var output handler.OutputLocker
	if a.Output != nil {
		output = a.Output
	}
	timeout := utils.ParseDuration(a.Config.API.ShutdownTimeout, 10*time.Second)
	return NewServer(ctx, a.Config.API.Bind, timeout, a.Runner, runs, output, a.Logger)
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Run listens on the bind address until ctx is cancelled, then shuts down
// gracefully and waits for triggered runs to return.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		err := s.server.Shutdown(shutdownCtx)
		s.handler.Wait()
		s.logger.Info("api server stopped")
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("api shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
