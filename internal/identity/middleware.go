package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
	"golang.org/x/crypto/bcrypt"

	"fieldops/pkg/requestcontext"
)

// RequireAuth validates the bearer token and stores the caller identity in
// the request context. When supportSecretHash is configured, a matching
// X-Support-Secret header marks the request as a support request, which
// bypasses per-assignee canEdit checks downstream.
func RequireAuth(validator *JWTValidator, supportSecretHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				writeUnauthorized(w, "missing bearer token")
				return
			}
			auth, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			if secret := r.Header.Get("X-Support-Secret"); secret != "" && supportSecretHash != "" {
				if bcrypt.CompareHashAndPassword([]byte(supportSecretHash), []byte(secret)) == nil {
					auth.IsSupportRequest = true
				} else {
					logger.WarnContext(ctx, "support secret mismatch",
						"request_id", requestcontext.RequestID(ctx),
					)
				}
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(ctx, auth)))
		})
	}
}

// DeviceMetadata parses the User-Agent and records device facts plus the
// client address in the request context for the audit trail.
func DeviceMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rawUA := r.Header.Get("User-Agent")
		ua := useragent.New(rawUA)
		browser, _ := ua.Browser()
		ctx = requestcontext.WithDeviceInfo(ctx, requestcontext.Device{
			UserAgent: rawUA,
			Browser:   browser,
			OS:        ua.OS(),
			Mobile:    ua.Mobile(),
		})

		ip := r.Header.Get("X-Forwarded-For")
		if idx := strings.Index(ip, ","); idx != -1 {
			ip = ip[:idx]
		}
		if ip = strings.TrimSpace(ip); ip == "" {
			ip = r.RemoteAddr
		}
		ctx = requestcontext.WithClientIP(ctx, ip)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeUnauthorized(w http.ResponseWriter, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + desc + `"}`))
}
