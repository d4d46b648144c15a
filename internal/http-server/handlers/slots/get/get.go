package get

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"prenota-service/api"
	"prenota-service/pkg/response"
	"prenota-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type SlotLister interface {
	ListSlots(ctx context.Context, practiceID string, from, to time.Time) ([]*api.SlotResponse, error)
}

type Response struct {
	response.Response
	Slots []*api.SlotResponse `json:"slots,omitempty"`
}

func New(log *slog.Logger, lister SlotLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.slots.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		practiceID := r.URL.Query().Get("practice_id")
		if practiceID == "" {
			log.Error("practice_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "practice_id is required"))
			return
		}

		from := time.Now()
		if fromStr := r.URL.Query().Get("from"); fromStr != "" {
			if t, err := time.Parse(time.RFC3339, fromStr); err == nil {
				from = t
			} else if t, err := time.Parse("2006-01-02", fromStr); err == nil {
				from = t
			}
		}

		to := from.AddDate(0, 0, 7)
		if toStr := r.URL.Query().Get("to"); toStr != "" {
			if t, err := time.Parse(time.RFC3339, toStr); err == nil {
				to = t
			} else if t, err := time.Parse("2006-01-02", toStr); err == nil {
				to = t
			}
		}

		slots, err := lister.ListSlots(r.Context(), practiceID, from, to)
		if err != nil {
			log.Error("Failed to list slots", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list slots"))
			return
		}

		log.Info("Slots retrieved", slog.Int("count", len(slots)))

		render.JSON(w, r, Response{Slots: slots})
	}
}
