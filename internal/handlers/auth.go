package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// AdminSecretHeader carries the shared secret on operator requests.
const AdminSecretHeader = "X-Admin-Secret"

// AdminGuard gates the operator endpoints behind a shared-secret header. When
// no secret is configured the whole admin surface is unavailable rather than
// open.
type AdminGuard struct {
	logger *slog.Logger
	secret string
}

func NewAdminGuard(logger *slog.Logger, secret string) *AdminGuard {
	return &AdminGuard{logger: logger, secret: secret}
}

func (g *AdminGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.secret == "" {
			writeError(w, http.StatusServiceUnavailable, "Admin interface is not configured")
			return
		}

		provided := r.Header.Get(AdminSecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(g.secret)) != 1 {
			g.logger.Warn("Rejected admin request", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}
