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

type AgendaGetter interface {
	Agenda(ctx context.Context, practiceID string, fromDate string) (*api.AgendaResponse, error)
}

type Response struct {
	response.Response
	Agenda *api.AgendaResponse `json:"agenda,omitempty"`
}

func New(log *slog.Logger, getter AgendaGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.agenda.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		practiceID := chi.URLParam(r, "practiceID")
		if practiceID == "" {
			log.Error("practiceID is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "practiceID is required"))
			return
		}

		agenda, err := getter.Agenda(r.Context(), practiceID, r.URL.Query().Get("from"))

		if errors.Is(err, response.ErrNotAuthorized) {
			log.Error("actor not authorized")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error(string(response.NOT_AUTHORIZED), "actor not authorized"))
			return
		}

		if errors.Is(err, response.ErrValidation) {
			log.Error("validation failed", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(string(response.VALIDATION), err.Error()))
			return
		}

		if err != nil {
			log.Error("Failed to build agenda", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to build agenda"))
			return
		}

		log.Info("Agenda built", slog.Int("chairs", len(agenda.Chairs)))

		render.JSON(w, r, Response{Agenda: agenda})
	}
}
