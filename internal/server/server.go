// Package server wires handlers, middleware and routes, and runs the HTTP
// server.
//
// ROUTES:
//
//	GET    /                  → banner
//	GET    /health            → store ping
//	GET    /metrics           → Prometheus exposition
//	POST   /api/users         → upsert by uid
//	GET    /api/users         → list
//	GET    /api/users/{uid}   → get
//	PUT    /api/users/{uid}   → partial update
//	DELETE /api/users/{uid}   → delete
//
// STORE LIFECYCLE:
// The server starts listening before the store is connected. Until
// AttachStore runs, every /api/users request is answered with 503 by
// middleware.RequireReady, and /health reports the store as disconnected.
// Start connects in the background and retries with a doubling backoff.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/career-connect/internal/handler"
	"github.com/sakif/career-connect/internal/metrics"
	"github.com/sakif/career-connect/internal/middleware"
	"github.com/sakif/career-connect/internal/model"
	"github.com/sakif/career-connect/internal/repository"
	"github.com/sakif/career-connect/internal/service"
)

const (
	shutdownTimeout = 30 * time.Second
	initialBackoff  = time.Second
	maxBackoff      = 30 * time.Second
)

// Config holds server configuration.
type Config struct {
	Port                 int
	CORSAllowedOrigins   []string
	ExposeInternalErrors bool
	// StoreTimeout bounds every store call made by the service.
	StoreTimeout time.Duration
	// StoreConnectTimeout bounds one connection attempt.
	StoreConnectTimeout time.Duration
}

// ConnectFunc opens the store. Start calls it until it succeeds.
type ConnectFunc func(ctx context.Context) (repository.UserProfileRepository, error)

// storeState is everything that exists only once the store is connected.
type storeState struct {
	repo  repository.UserProfileRepository
	users *service.UserService
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	state   atomic.Pointer[storeState]
}

// New creates a Server with its routes set up. No store is attached yet.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		metrics: m,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS: RequestID runs first so Logger can print the id;
// cors answers preflight requests before they reach the readiness gate.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(s.metrics.Middleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := handler.NewHealthHandler(s.pinger, s.logger, s.config.ExposeInternalErrors)
	s.router.Get("/", health.HandleRoot)
	s.router.Get("/health", health.HandleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	users := handler.NewUserHandler(liveUsers{s}, s.logger, s.config.ExposeInternalErrors)
	s.router.Route("/api/users", func(r chi.Router) {
		r.Use(middleware.RequireReady(s.Ready))
		users.Routes(r)
	})
}

// Handler returns the root handler, instrumented with OpenTelemetry.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "career-connect")
}

// Ready reports whether a store is attached.
func (s *Server) Ready() bool {
	return s.state.Load() != nil
}

// AttachStore builds the service on repo and opens /api/users. It may be
// called once; later calls are ignored and report false.
func (s *Server) AttachStore(repo repository.UserProfileRepository) bool {
	users := service.NewUserService(repo, s.logger,
		service.WithStoreTimeout(s.config.StoreTimeout),
		service.WithMetrics(s.metrics),
	)
	return s.state.CompareAndSwap(nil, &storeState{repo: repo, users: users})
}

// pinger returns the attached service, or a nil interface before AttachStore.
func (s *Server) pinger() handler.Pinger {
	st := s.state.Load()
	if st == nil {
		return nil
	}
	return st.users
}

// connect calls fn until it succeeds or ctx ends, doubling the wait between
// attempts up to maxBackoff.
func (s *Server) connect(ctx context.Context, fn ConnectFunc) {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.config.StoreConnectTimeout)
		repo, err := fn(attemptCtx)
		cancel()

		if err == nil {
			if !s.AttachStore(repo) {
				_ = repo.Close(context.Background())
			}
			s.logger.Info("store connected", slog.Int("attempt", attempt))
			return
		}

		s.logger.Error("store connection failed",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", backoff),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Start listens on the configured port, connects the store in the
// background and blocks until SIGINT/SIGTERM or a listener error.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait up to 30s for in-flight requests
//  3. Close the store
func (s *Server) Start(connectStore ConnectFunc) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	connectDone := make(chan struct{})
	go func() {
		defer close(connectDone)
		s.connect(ctx, connectStore)
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
		stop()

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			runErr = fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	<-connectDone
	if st := s.state.Load(); st != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), s.config.StoreConnectTimeout)
		defer cancel()
		if err := st.repo.Close(closeCtx); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}

	if runErr == nil {
		s.logger.Info("server stopped gracefully")
	}
	return runErr
}

// liveUsers forwards to the attached service. RequireReady guarantees a
// store is attached before any method runs.
type liveUsers struct{ s *Server }

func (l liveUsers) svc() *service.UserService { return l.s.state.Load().users }

func (l liveUsers) Upsert(ctx context.Context, input map[string]any) (*model.UserProfile, service.Outcome, error) {
	return l.svc().Upsert(ctx, input)
}

func (l liveUsers) GetByExternalID(ctx context.Context, uid string) (*model.UserProfile, error) {
	return l.svc().GetByExternalID(ctx, uid)
}

func (l liveUsers) ListAll(ctx context.Context) ([]model.UserProfile, error) {
	return l.svc().ListAll(ctx)
}

func (l liveUsers) PartialUpdate(ctx context.Context, uid string, patch map[string]any) (*model.UserProfile, error) {
	return l.svc().PartialUpdate(ctx, uid, patch)
}

func (l liveUsers) Delete(ctx context.Context, uid string) error {
	return l.svc().Delete(ctx, uid)
}
