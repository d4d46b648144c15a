package get

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"prenota-service/api"
	"prenota-service/pkg/response"
	"prenota-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type AppointmentGetter interface {
	GetAppointment(ctx context.Context, appointmentID string) (*api.AppointmentResponse, error)
	ListAppointments(ctx context.Context, practiceID string, from, to time.Time) ([]*api.AppointmentResponse, error)
}

type Response struct {
	response.Response
	Appointment  *api.AppointmentResponse   `json:"appointment,omitempty"`
	Appointments []*api.AppointmentResponse `json:"appointments,omitempty"`
}

func New(log *slog.Logger, getter AppointmentGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.appointments.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")

		if id != "" {
			appointment, err := getter.GetAppointment(r.Context(), id)

			if errors.Is(err, response.ErrNotAuthorized) {
				log.Error("actor not authorized")
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error(string(response.NOT_AUTHORIZED), "actor not authorized"))
				return
			}

			if errors.Is(err, response.ErrNotFound) {
				log.Error("resource not found")
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
				return
			}

			if err != nil {
				log.Error("Failed to get appointment", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get appointment"))
				return
			}

			render.JSON(w, r, Response{Appointment: appointment})
			return
		}

		practiceID := r.URL.Query().Get("practice_id")
		if practiceID == "" {
			log.Error("practice_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "practice_id is required"))
			return
		}

		from := time.Now()
		if fromStr := r.URL.Query().Get("from"); fromStr != "" {
			if t, err := time.Parse("2006-01-02", fromStr); err == nil {
				from = t
			}
		}

		to := from.AddDate(0, 0, 30)
		if toStr := r.URL.Query().Get("to"); toStr != "" {
			if t, err := time.Parse("2006-01-02", toStr); err == nil {
				to = t
			}
		}

		appointments, err := getter.ListAppointments(r.Context(), practiceID, from, to)

		if errors.Is(err, response.ErrNotAuthorized) {
			log.Error("actor not authorized")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error(string(response.NOT_AUTHORIZED), "actor not authorized"))
			return
		}

		if err != nil {
			log.Error("Failed to list appointments", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list appointments"))
			return
		}

		log.Info("Appointments retrieved", slog.Int("count", len(appointments)))

		render.JSON(w, r, Response{Appointments: appointments})
	}
}
