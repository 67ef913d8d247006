package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/voltcart/voltcart-backend/api/responses"
	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
	"github.com/voltcart/voltcart-backend/pkg/logger"
)

const userIDHeader = "X-User-Id"

// Identity reads the buyer id forwarded by the auth proxy. Anonymous checkout
// is allowed, so a missing header passes through; a malformed one does not.
func Identity(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(userIDHeader))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user id header must be a uuid"))
				return
			}

			ctx := WithUserID(r.Context(), userID.String())
			if logg != nil {
				ctx = logg.WithField(ctx, "user_id", userID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
