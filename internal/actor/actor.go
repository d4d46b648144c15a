package actor

import (
	"context"
	"net/http"

	"prenota-service/internal/models"
)

type ctxKey string

const actorKey ctxKey = "prenota.actor"

// WithActor stores the authenticated actor in context.
func WithActor(ctx context.Context, a models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// FromContext extracts the actor if present.
func FromContext(ctx context.Context) (models.Actor, bool) {
	val := ctx.Value(actorKey)
	if val == nil {
		return models.Actor{}, false
	}
	a, ok := val.(models.Actor)
	return a, ok && a.ID != ""
}

// Middleware lifts the identity asserted by the upstream auth collaborator
// (X-Actor-Id / X-Actor-Role headers) into the request context. Requests
// without an identity pass through; handlers that require one reject them.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Actor-Id")
		role := r.Header.Get("X-Actor-Role")

		if id != "" && role != "" {
			ctx := WithActor(r.Context(), models.Actor{
				ID:   id,
				Role: models.Role(role),
			})
			r = r.WithContext(ctx)
		}

		next.ServeHTTP(w, r)
	})
}
