package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"prenota-service/internal/actor"
	"prenota-service/internal/config"
	agendaGet "prenota-service/internal/http-server/handlers/agenda/get"
	apptCreate "prenota-service/internal/http-server/handlers/appointments/create"
	apptGet "prenota-service/internal/http-server/handlers/appointments/get"
	apptStatus "prenota-service/internal/http-server/handlers/appointments/status"
	apptViewed "prenota-service/internal/http-server/handlers/appointments/viewed"
	availCreate "prenota-service/internal/http-server/handlers/availability/create"
	availDelete "prenota-service/internal/http-server/handlers/availability/delete"
	availGet "prenota-service/internal/http-server/handlers/availability/get"
	availUpdate "prenota-service/internal/http-server/handlers/availability/update"
	proposalSearch "prenota-service/internal/http-server/handlers/proposals/search"
	reminderRun "prenota-service/internal/http-server/handlers/reminders/run"
	slotGenerate "prenota-service/internal/http-server/handlers/slots/generate"
	slotGet "prenota-service/internal/http-server/handlers/slots/get"
	"prenota-service/internal/lock"
	"prenota-service/internal/metrics"
	"prenota-service/internal/notify"
	svc "prenota-service/internal/service"
	"prenota-service/internal/storage/postgres"
	slogpretty "prenota-service/pkg/handlers/slogPretty"
	"prenota-service/pkg/middleware/mwLogger"
	"prenota-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Actor-Id, X-Actor-Role")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {

	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting API", slog.String("env", cfg.Env))
	log.Debug("Debug messages are enabled")

	storage, err := postgres.New(cfg.StoragePath)
	if err != nil {
		log.Error("Failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	locker, err := lock.NewRedisLock(cfg.RedisAddr)
	if err != nil {
		log.Error("Failed to init redis lock", sl.Err(err))
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(registry)

	dispatcher := notify.NewLogDispatcher(log)

	service := svc.NewService(log, storage, locker, dispatcher, bookingMetrics, cfg.Booking)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(mwLogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(CORS)
	router.Use(actor.Middleware)

	// Availability windows
	router.Post("/availability", availCreate.New(log, service))
	router.Get("/availability", availGet.New(log, service))
	router.Get("/availability/{id}", availGet.New(log, service))
	router.Put("/availability/{id}", availUpdate.New(log, service))
	router.Delete("/availability/{id}", availDelete.New(log, service))

	// Slots
	router.Get("/slots", slotGet.New(log, service))
	router.Post("/slots/generate", slotGenerate.New(log, service))

	// Agenda
	router.Get("/agenda/{practiceID}", agendaGet.New(log, service))

	// Appointments
	router.Post("/appointments", apptCreate.New(log, service))
	router.Get("/appointments", apptGet.New(log, service))
	router.Get("/appointments/{id}", apptGet.New(log, service))
	router.Patch("/appointments/{id}/status", apptStatus.New(log, service))
	router.Post("/appointments/{id}/viewed", apptViewed.New(log, service))

	// Proposals
	router.Get("/proposals/search", proposalSearch.New(log, service))

	// Reminders
	router.Post("/reminders/run", reminderRun.New(log, service))

	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	serv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	serverErrCh := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", slog.String("addr", cfg.Address))
		if err := serv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			log.Error("HTTP server stopped unexpectedly", sl.Err(err))
		} else {
			log.Info("HTTP server stopped gracefully")
		}
	}

	shutdownTimeout := cfg.HTTPServer.ShutdownTimeout

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server", slog.String("timeout", shutdownTimeout.String()))

	if err := serv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", sl.Err(err))
	} else {
		log.Info("Server shutdown complete")
	}

	if storage != nil {
		if err := storage.Close(); err != nil {
			log.Error("Failed to close storage", sl.Err(err))
		} else {
			log.Info("Storage closed")
		}
	}

	if locker != nil {
		if err := locker.Close(); err != nil {
			log.Error("Failed to close locker", sl.Err(err))
		} else {
			log.Info("Locker closed")
		}
	}

	log.Info("Shutdown finished, server stopped")

}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
