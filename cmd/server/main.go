package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/autopo-replenish/internal/api"
	"github.com/andresuchdata/autopo-replenish/internal/app"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/drive"
	"github.com/andresuchdata/autopo-replenish/internal/scheduler"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/andresuchdata/autopo-replenish/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	logger.Setup(cfg.LogLevel, cfg.Server.Mode)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize")
	}

	apiServer := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: api.NewRouter(&api.Services{
			Rules:          a.Rules,
			Suggestions:    a.Suggestions,
			PurchaseOrders: a.PurchaseOrders,
			Suppliers:      a.Suppliers,
			Projections:    a.Projections,
			ServiceLevel:   cfg.Replenishment.ServiceLevel,
		}, cfg.Server.AllowedOrigins),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	opsServer := &http.Server{
		Addr:    ":" + cfg.Server.OpsPort,
		Handler: opsRouter(a),
	}

	var builder scheduler.Builder
	if cfg.Replenishment.AutoBuild {
		builder = a.PurchaseOrders
	}
	sched := scheduler.New(a.Suggestions, builder, cfg.Replenishment.EvaluationInterval, service.TriggerScheduled)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(apiServer, "api") })
	g.Go(func() error { return serve(opsServer, "ops") })
	g.Go(func() error {
		if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), opsServer.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		logger.Log.Error().Err(err).Msg("Server stopped with error")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	a.Close(closeCtx)

	logger.Log.Info().Msg("Server exiting")
}

func serve(srv *http.Server, name string) error {
	logger.Log.Info().Str("listener", name).Str("addr", srv.Addr).Msg("Starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// opsRouter serves health, metrics and the Drive import endpoints.
func opsRouter(a *app.App) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := a.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if ingest := a.Ingest(); ingest != nil {
		drive.NewHandler(a.Drive, ingest, a.Config.Drive.FolderID).RegisterRoutes(r)
	} else {
		logger.Log.Info().Msg("Drive credentials not configured, import endpoints disabled")
	}

	return r
}
