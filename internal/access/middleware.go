package access

import (
	"net/http"

	"github.com/assefaz/stockledger/internal/platform/httpx"
	"github.com/assefaz/stockledger/internal/shared"
)

// RequireCapability answers 401 unless the session holds a grant, and puts
// the grant into the request context otherwise.
func RequireCapability(service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capability, err := service.Capability(shared.SessionFromContext(r.Context()))
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			ctx := shared.ContextWithCapability(r.Context(), capability)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
