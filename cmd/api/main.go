package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/devalaya/temple-darshan/internal/http/handlers"
	"github.com/devalaya/temple-darshan/internal/livecount"
	"github.com/devalaya/temple-darshan/internal/metrics"
	"github.com/devalaya/temple-darshan/internal/repo/postgres"
	"github.com/devalaya/temple-darshan/internal/service"
	"github.com/devalaya/temple-darshan/pkg/config"
	"github.com/devalaya/temple-darshan/pkg/database"
	"github.com/devalaya/temple-darshan/pkg/events"
	"github.com/devalaya/temple-darshan/pkg/logger"
	mw "github.com/devalaya/temple-darshan/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	counter := livecount.NewRedisStore(cfg.Redis)
	if err := counter.Ping(ctx); err != nil {
		logger.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer counter.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	metrics.Register()

	// Repositories
	passRepo := postgres.NewPassRepository(pool)
	templeRepo := postgres.NewTempleRepository(pool)

	// Services. The reconciler is built first so the admission controller
	// can trigger it on counter anomalies.
	reconcileService := service.NewReconcileService(passRepo, templeRepo, counter, eventBus, cfg)
	admissionService := service.NewAdmissionService(passRepo, templeRepo, counter, reconcileService, eventBus, cfg)
	capacityService := service.NewCapacityService(passRepo, templeRepo, eventBus, cfg)

	// The counter tier is ephemeral: rebuild every live count from the
	// ledger before taking traffic.
	if err := reconcileService.ReconcileAll(ctx, "startup"); err != nil {
		logger.Error("Startup counter warm-up failed", "error", err)
		os.Exit(1)
	}

	rolloverCtx, stopRollover := context.WithCancel(ctx)
	defer stopRollover()
	if cfg.Reconcile.RolloverEnabled {
		go reconcileService.RunRollover(rolloverCtx)
	}

	liveHandler := handlers.NewLiveHandler(admissionService, reconcileService)
	bookingsHandler := handlers.NewBookingsHandler(capacityService, admissionService, passRepo)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("darshan-api"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/live", liveHandler.Routes())
		r.Mount("/bookings", bookingsHandler.Routes())
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down darshan service...")
		stopRollover()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Darshan service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting darshan service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Darshan service error", "error", err)
		os.Exit(1)
	}
}
