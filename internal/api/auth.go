package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/sortersocial/sorter/internal/logging"
)

// WebhookAuthMiddleware requires the shared webhook token on the inbound
// webhook endpoint. Postmark sends it either as basic-auth credentials or
// in the X-Webhook-Token header, depending on how the webhook URL is
// configured. Read-only endpoints stay public.
func WebhookAuthMiddleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/webhook/inbound" {
			next.ServeHTTP(w, r)
			return
		}

		provided := r.Header.Get("X-Webhook-Token")
		if provided == "" {
			if _, pass, ok := r.BasicAuth(); ok {
				provided = pass
			}
		}
		if provided == "" {
			logging.SecurityEvent("unauthorized_webhook", "api",
				"reason", "missing token", "remote_addr", r.RemoteAddr)
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing webhook token")
			return
		}
		if !constantTimeEqual(provided, token) {
			logging.SecurityEvent("unauthorized_webhook", "api",
				"reason", "invalid token", "remote_addr", r.RemoteAddr)
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid webhook token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// constantTimeEqual compares secrets without leaking timing.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
