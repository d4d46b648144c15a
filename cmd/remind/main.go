package main

import (
	"context"
	"log/slog"
	"os"

	"prenota-service/internal/config"
	"prenota-service/internal/metrics"
	"prenota-service/internal/notify"
	svc "prenota-service/internal/service"
	"prenota-service/internal/storage/postgres"
	"prenota-service/pkg/sl"

	"github.com/prometheus/client_golang/prometheus"
)

// One-shot reminder batch, meant to run from cron once a day.
func main() {
	cfg := config.MustLoad()

	log := slog.New(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)

	log.Info("Starting reminder batch", slog.Int("lead_days", cfg.Booking.ReminderLeadDays))

	storage, err := postgres.New(cfg.StoragePath)
	if err != nil {
		log.Error("Failed to init storage", sl.Err(err))
		os.Exit(1)
	}
	defer func() { _ = storage.Close() }()

	dispatcher := notify.NewLogDispatcher(log)
	bookingMetrics := metrics.NewBookingMetrics(prometheus.NewRegistry())

	// No locker: the batch never books, it only reads and flags.
	service := svc.NewService(log, storage, nil, dispatcher, bookingMetrics, cfg.Booking)

	result, err := service.ProcessDueReminders(context.Background())
	if err != nil {
		log.Error("Reminder batch failed", sl.Err(err))
		os.Exit(1)
	}

	log.Info("Reminder batch finished",
		slog.Int("processed", result.Processed),
		slog.Int("sent", result.Sent),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
	)
}
