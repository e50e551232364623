package server

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/Hacker-CK/ledger-engine/internal/core/gateway"
	"github.com/Hacker-CK/ledger-engine/internal/core/handler"
	"github.com/Hacker-CK/ledger-engine/internal/core/logger"
	"github.com/Hacker-CK/ledger-engine/internal/core/metrics"
	middlWre "github.com/Hacker-CK/ledger-engine/internal/core/middleware"
	"github.com/Hacker-CK/ledger-engine/internal/core/repository/postgres"
	"github.com/Hacker-CK/ledger-engine/internal/core/usecase"
	"github.com/Hacker-CK/ledger-engine/pkg/config"
	"github.com/Hacker-CK/ledger-engine/pkg/postgresdb"
	"github.com/gorilla/mux"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"
)

type Server struct {
	router             *mux.Router
	log                logger.Logger
	httpServer         *http.Server
	transactionHandler *handler.TransactionHandler
	db                 *postgresdb.Database
}

func NewServer(log logger.Logger) (*Server, error) {
	cfgDB, err := config.LoadConfigDB()
	if err != nil {
		return nil, err
	}

	cfgGateway, err := config.LoadConfigGateway()
	if err != nil {
		return nil, err
	}

	db, err := postgresdb.NewPostgresDB(*cfgDB, log)
	if err != nil {
		return nil, err
	}

	engineMetrics := metrics.New(promclient.DefaultRegisterer)

	ledgerRepository := postgres.NewPostgresLedgerRepo(db.DB, log)
	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL: cfgGateway.BaseURL,
		APIKey:  cfgGateway.APIKey,
		Timeout: cfgGateway.Timeout,
	}, engineMetrics, log)

	transactionUsecase := usecase.NewTransactionUsecase(ledgerRepository, engineMetrics, log)
	reconcileUsecase := usecase.NewReconcileUsecase(transactionUsecase, gatewayClient, log)
	transactionHandler := handler.NewTransactionHandler(transactionUsecase, reconcileUsecase, log)

	server := &Server{
		log:                log,
		router:             mux.NewRouter(),
		transactionHandler: transactionHandler,
		db:                 db,
	}

	server.router.Use(loggingMiddleware(server.log))

	mw := middleware.New(middleware.Config{
		Recorder: prometheus.NewRecorder(prometheus.Config{}),
	})

	server.router.Use(func(next http.Handler) http.Handler {
		return std.Handler("", mw, next)
	})

	server.RegisterRoutes()

	return server, nil
}

func (s *Server) RegisterRoutes() {
	s.router.Use(
		middlWre.WithErrorHandler(s.log),
		middlWre.Recovery(s.log),
	)
	s.transactionHandler.RegisterRoutes(s.router)
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
}

func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       9 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 60 * time.Second,
	}

	s.httpServer = srv

	return srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	var shutdownErr error

	go func() {
		if s.httpServer != nil {
			err := s.httpServer.Shutdown(ctx)
			if err != nil {
				s.log.Error("failed to shutdown HTTP server", logger.ErrorField("error", err))
				shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
			}
		}

		if s.db != nil {
			err := s.db.Close()
			if err != nil {
				s.log.Error("failed to close database connection", logger.ErrorField("error", err))
				shutdownErr = fmt.Errorf("database shutdown error: %w", err)
			}
		}

		close(done)
	}()

	select {
	case <-done:
		return shutdownErr
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func loggingMiddleware(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Info("HTTP request",
				logger.StringField("method", r.Method),
				logger.StringField("path", r.URL.Path),
				logger.StringField("remote_addr", r.RemoteAddr),
				logger.StringField("user_agent", r.UserAgent()),
			)
			next.ServeHTTP(w, r)
		})
	}
}
