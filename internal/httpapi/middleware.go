package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"

	"authcore/internal/auth"
	"authcore/internal/token"
)

type claimsKey struct{}

// ClaimsFromContext returns the access-token claims the auth
// middleware attached, nil outside protected routes.
func ClaimsFromContext(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*token.Claims)
	return claims
}

// withOrigin copies request provenance into the context for audit rows.
// RealIP middleware has already normalized RemoteAddr.
func withOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := auth.WithOrigin(r.Context(), auth.Origin{
			IP:        ip,
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth gates a subtree behind a bearer access token.
func (h *handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		scheme, rest, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || rest == "" {
			writeError(w, h.log, auth.ErrUnauthorized())
			return
		}

		claims, err := h.svc.Authenticate(strings.TrimSpace(rest))
		if err != nil {
			writeError(w, h.log, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
