package http

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"recurring-billing-backend/internal/config"
	"recurring-billing-backend/internal/logger"
	"recurring-billing-backend/internal/security"
)

const requestIDHeader = "X-Request-Id"

type contextKey int

const (
	requestIDKey contextKey = iota
	claimsKey
)

// RequestIDFromContext returns the id assigned by the request-id middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ClaimsFromContext returns the bearer claims of an authenticated request.
func ClaimsFromContext(ctx context.Context) (*security.StaffClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*security.StaffClaims)
	return claims, ok
}

// requestID keeps a client-supplied X-Request-Id or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		logger.DebugContext(ctx, "Request", "method", r.Method, "path", r.URL.Path, "request_id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cors admits requests without an Origin (curl, server-to-server) and
// browser requests from the allow-list. "*" allows every origin.
func cors(allowed []string) mux.MiddlewareFunc {
	allowAll := slices.Contains(allowed, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if !allowAll && !slices.Contains(allowed, origin) {
					writeError(w, r, http.StatusForbidden, "origin not allowed", nil)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+requestIDHeader)
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Expose-Headers", requestIDHeader)
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerAuth enforces config.SecurityAccess routes: a valid access token
// carrying a report-reading role. A nil token manager leaves every route open.
func bearerAuth(tm security.TokenManager) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tm == nil || config.GetSecurityLevel(r.URL.Path) == config.SecurityPublic {
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get("Authorization")
			if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
				token = token[7:]
			} else {
				token = ""
			}
			if token == "" {
				writeError(w, r, http.StatusUnauthorized, "authorization token is not provided", nil)
				return
			}

			claims, err := tm.ValidateToken(token)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, err.Error(), nil)
				return
			}
			if !claims.CanReadReports() {
				writeError(w, r, http.StatusForbidden, "finance or admin role required", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}
