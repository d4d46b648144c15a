package get

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"prenota-service/api"
	"prenota-service/pkg/response"
	"prenota-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type AvailabilityGetter interface {
	GetAvailability(ctx context.Context, windowID string) (*api.AvailabilityResponse, error)
	ListAvailability(ctx context.Context, practiceID string) ([]*api.AvailabilityResponse, error)
}

type Response struct {
	response.Response
	Window  *api.AvailabilityResponse   `json:"window,omitempty"`
	Windows []*api.AvailabilityResponse `json:"windows,omitempty"`
}

func New(log *slog.Logger, getter AvailabilityGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.availability.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")

		if id != "" {
			window, err := getter.GetAvailability(r.Context(), id)

			if errors.Is(err, response.ErrNotFound) {
				log.Error("resource not found")
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
				return
			}

			if err != nil {
				log.Error("Failed to get availability window", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get availability window"))
				return
			}

			render.JSON(w, r, Response{Window: window})
			return
		}

		practiceID := r.URL.Query().Get("practice_id")
		if practiceID == "" {
			log.Error("practice_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "practice_id is required"))
			return
		}

		windows, err := getter.ListAvailability(r.Context(), practiceID)
		if err != nil {
			log.Error("Failed to list availability windows", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list availability windows"))
			return
		}

		log.Info("Availability windows retrieved", slog.Int("count", len(windows)))

		render.JSON(w, r, Response{Windows: windows})
	}
}
