package run

import (
	"context"
	"log/slog"
	"net/http"

	"prenota-service/api"
	"prenota-service/pkg/response"
	"prenota-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type ReminderRunner interface {
	ProcessDueReminders(ctx context.Context) (*api.ReminderRunResponse, error)
}

type Response struct {
	response.Response
	api.ReminderRunResponse
}

func New(log *slog.Logger, runner ReminderRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.reminders.run.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		result, err := runner.ProcessDueReminders(r.Context())
		if err != nil {
			log.Error("Failed to run reminder batch", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to run reminder batch"))
			return
		}

		log.Info("Reminder batch finished",
			slog.Int("processed", result.Processed),
			slog.Int("sent", result.Sent),
			slog.Int("skipped", result.Skipped),
			slog.Int("failed", result.Failed),
		)

		render.JSON(w, r, Response{ReminderRunResponse: *result})
	}
}
