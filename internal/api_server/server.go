package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/config"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/handlers"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/service"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/pkg/metrics"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const gracefulShutdownTimeout = 5 * time.Second

type Server struct {
	cfg       *config.Config
	store     store.Store
	engine    *service.ProvisioningEngine
	finalizer *service.BulkFinalizer
	listener  net.Listener
}

// New returns a new instance of the course-wizard API server.
func New(
	cfg *config.Config,
	store store.Store,
	engine *service.ProvisioningEngine,
	finalizer *service.BulkFinalizer,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:       cfg,
		store:     store,
		engine:    engine,
		finalizer: finalizer,
		listener:  listener,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedMethods: []string{"GET", "POST", "HEAD", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := handlers.New(s.engine, s.finalizer, service.NewJobService(s.store))
	h.Routes(router)

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
