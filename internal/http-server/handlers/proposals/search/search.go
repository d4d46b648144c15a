package search

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"prenota-service/api"
	"prenota-service/pkg/response"
	"prenota-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type ProposalSearcher interface {
	SearchProposals(ctx context.Context, email, phone string) ([]*api.ProposalResponse, error)
}

type Response struct {
	response.Response
	Proposals []*api.ProposalResponse `json:"proposals,omitempty"`
}

func New(log *slog.Logger, searcher ProposalSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.proposals.search.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		email := r.URL.Query().Get("email")
		phone := r.URL.Query().Get("phone")

		proposals, err := searcher.SearchProposals(r.Context(), email, phone)

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
			log.Error("Failed to search proposals", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to search proposals"))
			return
		}

		log.Info("Proposals retrieved", slog.Int("count", len(proposals)))

		render.JSON(w, r, Response{Proposals: proposals})
	}
}
