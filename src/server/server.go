package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"

	"warehouseops/src/actions"
	"warehouseops/src/auth"
	"warehouseops/src/handler"
	"warehouseops/src/model"
	"warehouseops/src/sla"
)

type detector interface {
	Detect(ctx context.Context) ([]model.Exception, error)
}

type recommender interface {
	Recommendations(ctx context.Context) ([]model.Recommendation, error)
}

type executor interface {
	Execute(ctx context.Context, req actions.ExecuteRequest) (*actions.ExecuteResult, error)
}

type actionHistory interface {
	ListByException(ctx context.Context, exceptionID string) ([]model.ActionLogEntry, error)
}

type reporter interface {
	History(ctx context.Context, f sla.HistoryFilter) ([]model.SlaEvent, error)
	Stats(ctx context.Context, f sla.StatsFilter) (*sla.Stats, error)
	Trends(ctx context.Context, days int) ([]sla.TrendBucket, error)
}

// Routes is everything the HTTP layer is wired to.
type Routes struct {
	Detector    detector
	Recommender recommender
	Executor    executor
	Reporter    reporter
	Actions     actionHistory
	Verifier    *auth.Verifier
	Alerts      http.Handler
}

func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(rt.Verifier.Middleware)

		if rt.Alerts != nil {
			r.Get("/ws/alerts", rt.Alerts.ServeHTTP)
		}

		r.Get("/api/exceptions/active", handler.ActiveExceptionsHandler(rt.Detector))
		r.Get("/api/exceptions/recommendations", handler.RecommendationsHandler(rt.Recommender))
		r.Get("/api/exceptions/{id}/actions", handler.ActionHistoryHandler(rt.Actions))
		r.Get("/api/sla/history", handler.SlaHistoryHandler(rt.Reporter))
		r.Get("/api/sla/stats", handler.SlaStatsHandler(rt.Reporter))
		r.Get("/api/sla/trends", handler.SlaTrendsHandler(rt.Reporter))

		// Remediations
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleSupervisor, auth.RoleAdmin))
			r.Post("/api/exceptions/execute", handler.ExecuteActionHandler(rt.Executor))
			r.Patch("/api/exceptions/{id}/reassign", handler.PatchActionHandler(rt.Executor, model.ActionReassignWorker))
			r.Patch("/api/exceptions/{id}/unhold", handler.PatchActionHandler(rt.Executor, model.ActionUnhold))
			r.Patch("/api/exceptions/{id}/ack", handler.PatchActionHandler(rt.Executor, model.ActionAcknowledge))
		})
	})

	return r
}

// StartServer serves h until SIGINT or SIGTERM, then shuts down gracefully
// and runs onShutdown with the remaining shutdown budget.
func StartServer(config *Config, h http.Handler, onShutdown func(ctx context.Context)) {
	addr := ":" + config.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
	if onShutdown != nil {
		onShutdown(ctx)
	}
}
