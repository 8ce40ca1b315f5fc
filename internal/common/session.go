package common

import (
	"net/http"
	"strings"
)

// Header names the SPA sends on every request after clinic selection.
const (
	HeaderClinicID = "X-Clinic-ID"
	HeaderActorID  = "X-Actor-ID"
)

// SessionMiddleware resolves the clinic and actor identifiers from request
// headers and stores them on the context. Handlers that require a clinic
// scope reject requests where the header is absent; the middleware itself
// never fails so public endpoints keep working.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if clinicID := strings.TrimSpace(r.Header.Get(HeaderClinicID)); clinicID != "" {
			ctx = WithClinicID(ctx, clinicID)
		}
		if actorID := strings.TrimSpace(r.Header.Get(HeaderActorID)); actorID != "" {
			ctx = WithActorID(ctx, actorID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
