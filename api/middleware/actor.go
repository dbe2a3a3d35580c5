package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/andresvelez/carshare-backend/api/responses"
	pkgerrors "github.com/andresvelez/carshare-backend/pkg/errors"
	"github.com/andresvelez/carshare-backend/pkg/logger"
)

const (
	actorIDHeader   = "X-Actor-Id"
	actorRoleHeader = "X-Actor-Role"
)

// Actor extracts the caller identity forwarded by the gateway. Authentication
// itself happens upstream; this layer only needs to know who is acting.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(actorIDHeader)
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "actor identity missing"))
				return
			}
			actorID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "actor id must be a uuid"))
				return
			}

			ctx := WithActorID(r.Context(), actorID)
			if role := r.Header.Get(actorRoleHeader); role != "" {
				ctx = WithRole(ctx, role)
			}
			if logg != nil {
				ctx = logg.WithField(ctx, "actor_id", actorID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
