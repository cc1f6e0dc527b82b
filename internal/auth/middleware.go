package auth

import (
	"net/http"
	"strings"

	"github.com/lotline-erp/lotline-erp/internal/platform/httpx"
	"github.com/lotline-erp/lotline-erp/internal/shared"
)

// Middleware authenticates the Authorization header and stores the actor
// id in the request context.
type Middleware struct {
	Service *Service
}

// RequireToken rejects requests without a valid bearer token.
func (m Middleware) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer, ok := bearerToken(r)
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		actorID, err := m.Service.Authenticate(r.Context(), bearer)
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actorID)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}
