package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/server/auth"
)

type ctxKey int

const userIDKey ctxKey = iota

// userID returns the authenticated user set by requireAuth. Handlers behind
// the middleware can rely on it being non-empty.
func userID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// requireAuth verifies the bearer token and stashes the user ID in the
// request context.
func (h *handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthHeaderName)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			h.writeError(w, r, common.ErrUnauthorized)
			return
		}

		uid, err := auth.GetUserIDFromToken(token, h.secret)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if uid == "" {
			h.writeError(w, r, common.ErrInvalidToken)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, uid)))
	})
}
