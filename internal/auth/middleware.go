// ABOUTME: HTTP middleware for the authentication stage of the pipeline
// ABOUTME: Extracts the bearer JWT and attaches the Principal to the context

package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an internal reason string (empty if successful). The
// reason is for logging only and is never sent to the caller.
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, `{"error":"`+msg+`"}`, status)
}

// Authenticate creates middleware that verifies the bearer credential and
// attaches the Principal to the request context. All verification failures
// (absent, malformed, expired, bad signature) are reported identically with
// 401 so callers cannot distinguish why a credential was rejected. This
// stage performs no database access.
func Authenticate(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, reason := extractBearerToken(r.Header.Get("Authorization"))
			if reason != "" {
				logAuthFailure(logger, r, reason)
				writeError(w, http.StatusUnauthorized, "invalid or expired credential")
				return
			}

			principal, err := verifier.Verify(token)
			if err != nil {
				logAuthFailure(logger, r, "token verification failed", "error", err)
				writeError(w, http.StatusUnauthorized, "invalid or expired credential")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// logAuthFailure logs an authentication failure with structured context.
func logAuthFailure(logger *slog.Logger, r *http.Request, reason string, attrs ...any) {
	if logger == nil {
		return
	}
	baseAttrs := []any{"reason", reason, "remote_addr", r.RemoteAddr, "path", r.URL.Path}
	baseAttrs = append(baseAttrs, attrs...)
	logger.Warn("auth failure", baseAttrs...)
}
