package web

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/ecpack/internal/core"
	mw "github.com/JonMunkholm/ecpack/internal/web/middleware"
)

// ownerHeader carries the caller identity set by the gateway in front of
// the service.
const ownerHeader = "X-User-ID"

// withOwner stores the request owner in the context: the X-User-ID header,
// or the client IP when the header is absent.
func withOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(ownerHeader))
		if owner == "" {
			owner = mw.ClientIP(r)
		}
		next.ServeHTTP(w, r.WithContext(core.ContextWithOwner(r.Context(), owner)))
	})
}
